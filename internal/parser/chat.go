package parser

import (
	"regexp"
	"strings"

	"github.com/scrypster/casefile/pkg/types"
)

// chatLineRe matches `- [<timestamp>] **<sender>**: <body>`.
var chatLineRe = regexp.MustCompile(`^- \[(\d{4}-\d{2}-\d{2}T[^\]]+)\] \*\*([^*]*)\*\*: (.+)`)

type chatGrammar struct{}

func (chatGrammar) TryParse(line string) (types.Payload, bool) {
	m := chatLineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	body, sourceApp := splitSourceApp(strings.TrimSpace(m[3]))
	return types.ChatMessage{
		Time:      m[1],
		Sender:    m[2],
		Body:      body,
		SourceApp: sourceApp,
	}, true
}

// splitSourceApp extracts a trailing parenthesized source-application tag:
// the body must end with ')' and contain a matching '(' that is not the
// first character. Bodies like "(shrug)" alone keep their parens.
func splitSourceApp(body string) (string, string) {
	if !strings.HasSuffix(body, ")") {
		return body, ""
	}
	idx := strings.LastIndex(body, "(")
	if idx <= 0 {
		return body, ""
	}
	return strings.TrimSpace(body[:idx]), body[idx+1 : len(body)-1]
}

// FormatChatLine renders a chat message back into its source line form.
// Parsing the result yields the same message; tests rely on this round trip.
func FormatChatLine(m types.ChatMessage) string {
	var b strings.Builder
	b.WriteString("- [")
	b.WriteString(m.Time)
	b.WriteString("] **")
	b.WriteString(m.Sender)
	b.WriteString("**: ")
	b.WriteString(m.Body)
	if m.SourceApp != "" {
		b.WriteString(" (")
		b.WriteString(m.SourceApp)
		b.WriteString(")")
	}
	return b.String()
}
