package parser

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/scrypster/casefile/pkg/types"
)

// previewLen caps the last-message preview stored per thread.
const previewLen = 150

var (
	threadHeaderRe  = regexp.MustCompile(`^### Chat: (.+)`)
	threadStartedRe = regexp.MustCompile(`^\*\*Started:\*\* (.+)`)
)

// Thread is one parsed chat thread: the messages it exclusively owns plus
// the participant set in first-seen order.
type Thread struct {
	ID           int
	SourceApp    string
	Started      string
	Messages     []types.ChatMessage
	Participants []string
}

// Summarize folds a thread into its stored summary form.
func (t *Thread) Summarize(deviceID string) types.ChatThread {
	participants := t.Participants
	if len(participants) == 0 {
		participants = []string{"Unknown"}
	}
	summary := types.ChatThread{
		DeviceID:     deviceID,
		ThreadID:     t.ID,
		SourceApp:    t.SourceApp,
		Started:      t.Started,
		Participants: participants,
		MessageCount: len(t.Messages),
	}
	if len(t.Messages) > 0 {
		summary.FirstDate = t.Messages[0].Time
		summary.LastDate = t.Messages[len(t.Messages)-1].Time
		preview := t.Messages[len(t.Messages)-1].Body
		if len(preview) > previewLen {
			preview = preview[:previewLen]
		}
		summary.LastMessagePreview = preview
	} else {
		summary.FirstDate = t.Started
		summary.LastDate = t.Started
	}
	return summary
}

// Threads parses a chat export into threads. A `### Chat: <source>` header
// starts a new thread, flushing the previous one if it holds messages; a
// `**Started:** <value>` line annotates the current thread. A message seen
// before any header starts an implicit thread keyed by the message's
// extracted source tag. Thread IDs are 1-based sequence numbers scoped to
// the file. A missing file yields no threads.
func Threads(path string) []Thread {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var (
		threads   []Thread
		current   *Thread
		seen      map[string]bool
		threadNum int
	)
	flush := func() {
		if current != nil && len(current.Messages) > 0 {
			threads = append(threads, *current)
		}
	}

	grammar := chatGrammar{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if m := threadHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			threadNum++
			current = &Thread{ID: threadNum, SourceApp: strings.TrimSpace(m[1])}
			seen = map[string]bool{}
			continue
		}

		if current != nil {
			if m := threadStartedRe.FindStringSubmatch(line); m != nil {
				current.Started = strings.TrimSpace(m[1])
				continue
			}
		}

		payload, ok := grammar.TryParse(line)
		if !ok {
			continue
		}
		msg := payload.(types.ChatMessage)
		if current == nil {
			threadNum++
			source := msg.SourceApp
			if source == "" {
				source = "Unknown"
			}
			current = &Thread{ID: threadNum, SourceApp: source, Started: msg.Time}
			seen = map[string]bool{}
		}
		current.Messages = append(current.Messages, msg)
		if msg.Sender != "" && !seen[msg.Sender] {
			seen[msg.Sender] = true
			current.Participants = append(current.Participants, msg.Sender)
		}
	}
	flush()
	return threads
}
