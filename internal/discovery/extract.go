package discovery

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// phoneRunPattern catches phone numbers glued onto a local part by
// sloppy page markup.
var phoneRunPattern = regexp.MustCompile(`\d{3}[-.]?\d{3}[-.]?\d{4}`)

var topLabelPattern = regexp.MustCompile(`\.[A-Za-z]{2,}$`)

// Placeholder and infrastructure domains that never belong to a person.
var excludedDomains = map[string]struct{}{
	"example.com":  {},
	"test.com":     {},
	"domain.com":   {},
	"yoursite.com": {},
	"company.com":  {},
	"email.com":    {},
	"sentry.io":    {},
}

// Local parts that identify machinery or placeholders, not people.
var excludedLocals = map[string]struct{}{
	"noreply":       {},
	"no-reply":      {},
	"donotreply":    {},
	"do-not-reply":  {},
	"bounce":        {},
	"mailer-daemon": {},
	"privacy":       {},
	"abuse":         {},
	"postmaster":    {},
	"sample":        {},
	"demo":          {},
	"fake":          {},
	"null":          {},
	"void":          {},
	"your-email":    {},
	"youremail":     {},
	"name":          {},
	"firstname":     {},
	"user":          {},
}

// ValidShape checks the structural rules an extracted address must pass
// before classification.
func ValidShape(email string) bool {
	if len(email) <= 5 || len(email) >= 100 {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	local, domain := email[:at], email[at+1:]

	// Long local parts are almost always surrounding text glued onto a
	// real address by markup stripping.
	if len(local) > 40 {
		return false
	}
	if phoneRunPattern.MatchString(local) {
		return false
	}

	if len(domain) < 4 || !strings.Contains(domain, ".") {
		return false
	}
	if !topLabelPattern.MatchString(domain) {
		return false
	}

	if _, ok := excludedDomains[domain]; ok {
		return false
	}
	if _, ok := excludedLocals[local]; ok {
		return false
	}
	return true
}

// Extract pulls valid email addresses out of a page and enriches each
// with name, title, and department context found near it. The body may
// be HTML or plain text; results are unique per page, lowercased, and
// carry the source URL and title.
func Extract(sourceURL, sourceTitle string, body []byte) []Candidate {
	text := flatten(body)

	var out []Candidate
	index := make(map[string]int)

	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		email := strings.ToLower(text[loc[0]:loc[1]])
		if !ValidShape(email) {
			continue
		}

		ctx := enrich(text, loc[0], loc[1])

		if i, seen := index[email]; seen {
			mergeContext(&out[i], ctx)
			continue
		}
		index[email] = len(out)
		out = append(out, Candidate{
			Email:       email,
			Name:        ctx.name,
			Title:       ctx.title,
			Department:  ctx.department,
			SourceURL:   sourceURL,
			SourceTitle: sourceTitle,
		})
	}
	return out
}

// flatten renders HTML to plain text, skipping script and style. Plain
// text input passes through unchanged since the parser wraps it in a
// body node.
func flatten(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				sb.WriteString(trimmed)
				// Newline separators keep name runs from spanning
				// unrelated nodes.
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}

const enrichWindow = 200

type candidateContext struct {
	name       string
	title      string
	department string
}

var titlePattern = regexp.MustCompile(`(?i)\b(CEO|CTO|CFO|COO|Chief [A-Za-z]+ Officer|Founder|Co-Founder|President|Vice President|VP|Director|Manager|Engineer|Developer|Consultant|Specialist|Advisor|Analyst|Head of [A-Za-z]+|Partner|Owner)\b`)

var departmentPattern = regexp.MustCompile(`(?i)\b(Engineering|Marketing|Sales|Support|Finance|Operations|Product|Design|Legal|Human Resources|HR|Recruiting|Partnerships|Customer Success)\b`)

// namePattern matches runs of two or more capitalized words.
var namePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`)

var allCapsNamePattern = regexp.MustCompile(`\b[A-Z]{2,}(?: [A-Z]{2,})+\b`)

var titleCaser = cases.Title(language.English)

// enrich scans the text surrounding an email occurrence for a person
// name, a job title, and a department.
func enrich(text string, start, end int) candidateContext {
	lo := start - enrichWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + enrichWindow
	if hi > len(text) {
		hi = len(text)
	}
	window := text[lo:hi]

	var ctx candidateContext
	if m := titlePattern.FindString(window); m != "" {
		ctx.title = m
	}
	if m := departmentPattern.FindString(window); m != "" {
		ctx.department = m
	}
	ctx.name = findName(window)
	return ctx
}

// findName picks a capitalized-word run that is not a title phrase.
// ALLCAPS runs are normalized to title case.
func findName(window string) string {
	for _, m := range namePattern.FindAllString(window, -1) {
		if titlePattern.MatchString(m) || departmentPattern.MatchString(m) {
			continue
		}
		return m
	}
	if m := allCapsNamePattern.FindString(window); m != "" && !titlePattern.MatchString(m) {
		return titleCaser.String(strings.ToLower(m))
	}
	return ""
}

func mergeContext(c *Candidate, ctx candidateContext) {
	if c.Name == "" {
		c.Name = ctx.name
	}
	if c.Title == "" {
		c.Title = ctx.title
	}
	if c.Department == "" {
		c.Department = ctx.department
	}
}
