package parser

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/scrypster/casefile/pkg/types"
)

// maxEmailPreview caps the concatenated body preview.
const maxEmailPreview = 300

var (
	fromToRe  = regexp.MustCompile(`\*\*From:\*\*\s*(.*?)\s*→\s*\*\*To:\*\*\s*(.*)`)
	htmlTagRe = regexp.MustCompile(`<[^>]+>`)
)

// parseEmails runs the multi-line email state machine. A header line is
// `### <timestamp> — <subject>`; the next line may carry From/To, an
// optional `**Source:**` line follows, and everything up to the next header
// or a `---` rule is stripped of markup and joined into the preview.
func parseEmails(r io.Reader) []types.EmailMessage {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	var emails []types.EmailMessage
	i := 0
	for i < len(lines) {
		line := lines[i]
		if !strings.HasPrefix(line, "### ") || !strings.Contains(line, "—") {
			i++
			continue
		}

		timestamp, subject, _ := strings.Cut(line[4:], "—")
		email := types.EmailMessage{
			Time:    strings.TrimSpace(timestamp),
			Subject: strings.TrimSpace(subject),
		}

		i++
		if i < len(lines) {
			if m := fromToRe.FindStringSubmatch(lines[i]); m != nil {
				email.From = strings.TrimSpace(m[1])
				email.To = strings.TrimSpace(m[2])
			}
			i++
			if i < len(lines) && strings.HasPrefix(lines[i], "**Source:**") {
				email.SourceApp = strings.TrimSpace(strings.TrimPrefix(lines[i], "**Source:**"))
				i++
			}
		}

		var preview strings.Builder
		for i < len(lines) && !strings.HasPrefix(lines[i], "---") && !strings.HasPrefix(lines[i], "### ") {
			clean := strings.TrimSpace(htmlTagRe.ReplaceAllString(lines[i], ""))
			if clean != "" && preview.Len() < maxEmailPreview {
				preview.WriteString(clean)
				preview.WriteString(" ")
			}
			i++
		}
		text := strings.TrimSpace(preview.String())
		if len(text) > maxEmailPreview {
			text = text[:maxEmailPreview]
		}
		email.Preview = text

		emails = append(emails, email)
	}
	return emails
}
