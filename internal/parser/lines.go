package parser

import (
	"regexp"
	"strings"

	"github.com/scrypster/casefile/pkg/types"
)

// Line grammars for the pipe-delimited categories. Each regex anchors on the
// leading bullet so prose, headers, and rules fall through silently.
var (
	callLineRe     = regexp.MustCompile(`^- \*\*(\d{4}-\d{2}-\d{2}T[^*]+)\*\* \| (\w+) \| (\w+) \| Duration: ([^ |]+)(.*)`)
	contactLineRe  = regexp.MustCompile(`^- \*\*([^*]+)\*\* \| Source: (.+)`)
	browsingLineRe = regexp.MustCompile(`^- \*\*(\d{4}-\d{2}-\d{2}T[^*]+)\*\* \| \[([^\]]*)\]\(([^)]*)\) \| (.+)`)
	searchLineRe   = regexp.MustCompile(`^- \*\*([^*]*)\*\* \| (.+?) \| (.+)`)
	locationLineRe = regexp.MustCompile(`^- \*\*([^*]*)\*\* \| ([^|]*)\|(.+)`)
)

type callGrammar struct{}

func (callGrammar) TryParse(line string) (types.Payload, bool) {
	m := callLineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return types.CallEntry{
		Time:      m[1],
		Direction: m[2],
		Status:    m[3],
		Duration:  m[4],
		Details:   strings.Trim(m[5], " |"),
	}, true
}

type contactGrammar struct{}

func (contactGrammar) TryParse(line string) (types.Payload, bool) {
	m := contactLineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return types.Contact{
		Name:      m[1],
		SourceApp: strings.TrimSpace(m[2]),
	}, true
}

type browsingGrammar struct{}

func (browsingGrammar) TryParse(line string) (types.Payload, bool) {
	m := browsingLineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return types.BrowsingEntry{
		Time:    m[1],
		Title:   m[2],
		URL:     m[3],
		Browser: strings.TrimSpace(m[4]),
	}, true
}

type searchGrammar struct{}

func (searchGrammar) TryParse(line string) (types.Payload, bool) {
	m := searchLineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return types.SearchEntry{
		Time:      m[1],
		Query:     m[2],
		SourceApp: strings.TrimSpace(m[3]),
	}, true
}

type locationGrammar struct{}

// Location lines carry `<coords> | <address> | <source>`, but older exports
// drop the address. The tail is split on '|' and the single-field form is
// treated as source only.
func (locationGrammar) TryParse(line string) (types.Payload, bool) {
	m := locationLineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	entry := types.LocationEntry{
		Time:   m[1],
		Coords: strings.TrimSpace(m[2]),
	}
	rest := strings.TrimSpace(m[3])
	if parts := strings.SplitN(rest, "|", 2); len(parts) == 2 {
		entry.Address = strings.TrimSpace(parts[0])
		entry.SourceApp = strings.TrimSpace(parts[1])
	} else {
		entry.SourceApp = rest
	}
	return entry, true
}

// maxGenericContent caps free-text record content.
const maxGenericContent = 500

type genericGrammar struct{}

func (genericGrammar) TryParse(line string) (types.Payload, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "- ") {
		return nil, false
	}
	content := line[2:]
	if len(content) > maxGenericContent {
		content = content[:maxGenericContent]
	}
	return types.GenericEntry{Content: content}, true
}
