package discovery

import (
	"strings"
	"unicode"
)

// Classification is the outcome of the personal/generic heuristic.
type Classification struct {
	Accepted   bool
	Personal   bool
	Confidence float64
	Reason     string
}

// Role mailbox prefixes. A bare match or a separator-delimited prefix
// match marks the address generic.
var genericPrefixes = []string{
	"info", "sales", "support", "hr", "billing", "webmaster", "admin",
	"contact", "hello", "office", "help", "service", "services",
	"marketing", "team", "careers", "jobs", "press", "media",
	"enquiries", "inquiries", "accounts", "finance", "legal", "general",
	"feedback", "newsletter", "partnerships", "recruitment", "security",
}

const (
	confidencePersonalPattern = 0.9
	confidencePersonalWeak    = 0.7
	confidenceGenericEnriched = 0.7
)

// Classify decides whether an address looks like it reaches a person.
// hasContext reports whether extraction found a name, title, or
// department next to the address; that context rescues an otherwise
// generic mailbox at reduced confidence. The decision is deterministic
// for a given input.
func Classify(email string, hasContext bool) Classification {
	at := strings.LastIndex(email, "@")
	local, domain := email[:at], email[at+1:]

	if prefix := genericPrefix(local); prefix != "" {
		if hasContext {
			return Classification{Accepted: true, Confidence: confidenceGenericEnriched, Reason: "generic_with_context"}
		}
		return Classification{Reason: "generic_" + prefix}
	}

	if strings.HasSuffix(domain, ".gov") || strings.Contains(domain, ".gov.") {
		return Classification{Reason: "gov_domain"}
	}

	hasSeparator := strings.ContainsAny(local, "._-")
	hasDigit := strings.ContainsFunc(local, unicode.IsDigit)

	// University department mailboxes tend to be short single tokens
	// (physics@, admissions@) rather than person-shaped locals.
	if academicDomain(domain) && !hasSeparator && !hasDigit {
		return Classification{Reason: "edu_department"}
	}

	if isFirstLast(local) {
		return Classification{Accepted: true, Personal: true, Confidence: confidencePersonalPattern, Reason: "firstname_lastname"}
	}
	if hasSeparator || hasDigit {
		return Classification{Accepted: true, Personal: true, Confidence: confidencePersonalWeak, Reason: "separator_or_digit"}
	}
	if len(local) >= 4 && alphaOnly(local) {
		return Classification{Accepted: true, Personal: true, Confidence: confidencePersonalWeak, Reason: "single_name"}
	}

	return Classification{Reason: "no_personal_indicator"}
}

func genericPrefix(local string) string {
	for _, p := range genericPrefixes {
		if local == p {
			return p
		}
		if strings.HasPrefix(local, p) && len(local) > len(p) {
			switch local[len(p)] {
			case '.', '_', '-':
				return p
			}
		}
	}
	return ""
}

func academicDomain(domain string) bool {
	if strings.HasSuffix(domain, ".edu") || strings.Contains(domain, ".edu.") {
		return true
	}
	return strings.Contains(domain, ".ac.")
}

// isFirstLast matches dot-separated locals where every segment is at
// least two letters, the john.smith shape.
func isFirstLast(local string) bool {
	parts := strings.Split(local, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if len(p) < 2 || !alphaOnly(p) {
			return false
		}
	}
	return true
}

func alphaOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
