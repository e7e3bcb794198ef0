// Package parser converts the semi-structured markdown evidence exports into
// typed records. The files are hand-authored and not strictly regular, so
// every grammar silently skips lines it cannot match: false rejection of a
// line must never abort a pass. That tolerance is deliberate policy, not an
// oversight, and is covered by tests.
package parser

import (
	"bufio"
	"io"
	"iter"
	"os"

	"github.com/scrypster/casefile/pkg/types"
)

// Grammar matches one category's line format. TryParse returns the parsed
// payload and true when the line matches, or (nil, false) to skip the line.
type Grammar interface {
	TryParse(line string) (types.Payload, bool)
}

// GrammarFor returns the line grammar for a category. The free-text
// categories (notes, passwords, voicemails) share the generic grammar.
// Emails are not line-oriented; use Records, which routes them to the
// multi-line email parser.
func GrammarFor(category types.Category) Grammar {
	switch category {
	case types.CategoryChats:
		return chatGrammar{}
	case types.CategoryCalls:
		return callGrammar{}
	case types.CategoryContacts:
		return contactGrammar{}
	case types.CategoryBrowsing:
		return browsingGrammar{}
	case types.CategorySearches:
		return searchGrammar{}
	case types.CategoryLocations:
		return locationGrammar{}
	default:
		return genericGrammar{}
	}
}

// Records returns a lazy sequence of payloads parsed from the file at path.
// The file is opened when the sequence is ranged over, so the sequence is
// restartable: ranging twice re-reads the file. A missing file yields an
// empty sequence, not an error.
func Records(path string, category types.Category) iter.Seq[types.Payload] {
	return func(yield func(types.Payload) bool) {
		f, err := os.Open(path)
		if err != nil {
			return
		}
		defer f.Close()

		if category == types.CategoryEmails {
			for _, email := range parseEmails(f) {
				if !yield(email) {
					return
				}
			}
			return
		}

		grammar := GrammarFor(category)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if payload, ok := grammar.TryParse(scanner.Text()); ok {
				if !yield(payload) {
					return
				}
			}
		}
	}
}

// ScanLines applies a grammar to every line of r and collects the matches.
// Used by tests and by the thread parser's fallback path.
func ScanLines(r io.Reader, grammar Grammar) []types.Payload {
	var payloads []types.Payload
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if payload, ok := grammar.TryParse(scanner.Text()); ok {
			payloads = append(payloads, payload)
		}
	}
	return payloads
}
