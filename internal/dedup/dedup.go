// Package dedup persists the addresses already returned for a campaign
// so repeat runs never hand the same address back twice. Each campaign
// gets one newline-delimited file; writes are append-only so a crash
// mid-run cannot drop entries from prior successful runs.
package dedup

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// CampaignKey derives the cache key for a topic and optional session.
// The same topic under different sessions gets independent history.
func CampaignKey(topic, sessionID string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(topic)) + "|" + sessionID))
	return hex.EncodeToString(sum[:])
}

// Store manages campaign cache files under a directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "dedup: create cache dir %s", dir)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".txt")
}

// Load reads the full address set for a campaign. A missing file is an
// empty campaign, not an error.
func (s *Store) Load(key string) (map[string]struct{}, error) {
	set := make(map[string]struct{})

	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, eris.Wrapf(err, "dedup: open cache %s", key)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		email := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if email != "" {
			set[email] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "dedup: read cache %s", key)
	}

	return set, nil
}

// Append adds emails to a campaign's cache file. The file is only ever
// opened O_APPEND; existing entries are never rewritten.
func (s *Store) Append(key string, emails []string) error {
	if len(emails) == 0 {
		return nil
	}

	f, err := os.OpenFile(s.path(key), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrapf(err, "dedup: open cache %s for append", key)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	for _, email := range emails {
		sb.WriteString(strings.ToLower(strings.TrimSpace(email)))
		sb.WriteByte('\n')
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		return eris.Wrapf(err, "dedup: append cache %s", key)
	}

	return f.Sync()
}

// Campaign binds a Store to one campaign key.
type Campaign struct {
	store *Store
	key   string
}

// NewCampaign creates a Campaign for a topic and optional session.
func NewCampaign(store *Store, topic, sessionID string) *Campaign {
	return &Campaign{store: store, key: CampaignKey(topic, sessionID)}
}

// Key returns the campaign's derived cache key.
func (c *Campaign) Key() string { return c.key }

// Load reads the campaign's returned-address set.
func (c *Campaign) Load() (map[string]struct{}, error) {
	return c.store.Load(c.key)
}

// Append records newly returned addresses for the campaign.
func (c *Campaign) Append(emails []string) error {
	return c.store.Append(c.key, emails)
}
