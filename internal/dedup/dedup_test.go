package dedup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignKey(t *testing.T) {
	k1 := CampaignKey("fintech", "")
	k2 := CampaignKey("fintech", "")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)

	// Different sessions on the same topic are independent campaigns.
	assert.NotEqual(t, k1, CampaignKey("fintech", "session-a"))
	assert.NotEqual(t, CampaignKey("fintech", "a"), CampaignKey("fintech", "b"))

	// Topic normalization: case and surrounding space do not matter.
	assert.Equal(t, CampaignKey("  FinTech ", "x"), CampaignKey("fintech", "x"))
}

func TestLoadMissingFile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	set, err := store.Load(CampaignKey("never-seen", ""))
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestAppendThenLoad(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	key := CampaignKey("fintech", "s1")

	require.NoError(t, store.Append(key, []string{"jane.doe@acme.com", "John.Smith@acme.com"}))

	set, err := store.Load(key)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Contains(t, set, "jane.doe@acme.com")
	assert.Contains(t, set, "john.smith@acme.com") // lowercased on write
}

func TestAppendIsAppendOnly(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	key := CampaignKey("fintech", "")

	require.NoError(t, store.Append(key, []string{"first@acme.com"}))
	require.NoError(t, store.Append(key, []string{"second@acme.com"}))

	data, err := os.ReadFile(filepath.Join(dir, key+".txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{"first@acme.com", "second@acme.com"}, lines)
}

func TestAppendEmptyIsNoop(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	key := CampaignKey("fintech", "")

	require.NoError(t, store.Append(key, nil))
	_, err = os.Stat(filepath.Join(dir, key+".txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCampaignRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	c := NewCampaign(store, "fintech", "s1")
	require.NoError(t, c.Append([]string{"jane.doe@acme.com"}))

	set, err := c.Load()
	require.NoError(t, err)
	assert.Contains(t, set, "jane.doe@acme.com")

	// A different session sees none of it.
	other := NewCampaign(store, "fintech", "s2")
	otherSet, err := other.Load()
	require.NoError(t, err)
	assert.Empty(t, otherSet)
}

func TestLoadSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	key := CampaignKey("fintech", "")

	require.NoError(t, os.WriteFile(filepath.Join(dir, key+".txt"),
		[]byte("a@b.com\n\n  \nc@d.com\n"), 0o644))

	set, err := store.Load(key)
	require.NoError(t, err)
	assert.Len(t, set, 2)
}
