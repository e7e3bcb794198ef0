package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/casefile/pkg/types"
)

func collect(t *testing.T, path string, cat types.Category) []types.Payload {
	t.Helper()
	var out []types.Payload
	for p := range Records(path, cat) {
		out = append(out, p)
	}
	return out
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestChatGrammar(t *testing.T) {
	payload, ok := chatGrammar{}.TryParse("- [2021-08-06T21:07:24+00:00] **Wendi**: Added to MCUA group (Signal)")
	require.True(t, ok)
	msg := payload.(types.ChatMessage)
	assert.Equal(t, "2021-08-06T21:07:24+00:00", msg.Time)
	assert.Equal(t, "Wendi", msg.Sender)
	assert.Equal(t, "Added to MCUA group", msg.Body)
	assert.Equal(t, "Signal", msg.SourceApp)
}

func TestChatGrammarNoSourceSuffix(t *testing.T) {
	payload, ok := chatGrammar{}.TryParse("- [2021-08-06T21:07:24+00:00] **Joy**: see you at 5")
	require.True(t, ok)
	msg := payload.(types.ChatMessage)
	assert.Equal(t, "see you at 5", msg.Body)
	assert.Empty(t, msg.SourceApp)

	// A body that is nothing but a parenthesized expression keeps its parens.
	payload, ok = chatGrammar{}.TryParse("- [2021-08-06T21:07:24+00:00] **Joy**: (shrug)")
	require.True(t, ok)
	assert.Equal(t, "(shrug)", payload.(types.ChatMessage).Body)
}

// Re-serializing a parsed chat line and parsing again must yield the same
// record whenever the source tag is non-empty.
func TestChatLineRoundTrip(t *testing.T) {
	lines := []string{
		"- [2021-08-06T21:07:24+00:00] **Wendi**: Added to MCUA group (Signal)",
		"- [2021-05-25T09:00:00+00:00] **Tina P**: call me re: ballots (Telegram)",
	}
	for _, line := range lines {
		payload, ok := chatGrammar{}.TryParse(line)
		require.True(t, ok, line)
		msg := payload.(types.ChatMessage)

		again, ok := chatGrammar{}.TryParse(FormatChatLine(msg))
		require.True(t, ok)
		assert.Equal(t, msg, again.(types.ChatMessage))
	}
}

func TestSilentSkipOfMalformedLines(t *testing.T) {
	content := strings.Join([]string{
		"# Chats export",
		"",
		"random prose that matches nothing",
		"- [2021-08-06T21:07:24+00:00] **Wendi**: first (Signal)",
		"- [not-a-timestamp] **X**: broken",
		"- missing brackets entirely",
		"- [2021-08-07T10:00:00+00:00] **Joy**: second (iMessage)",
	}, "\n")
	path := writeFixture(t, "chats.md", content)

	payloads := collect(t, path, types.CategoryChats)
	require.Len(t, payloads, 2)
	assert.Equal(t, "first", payloads[0].(types.ChatMessage).Body)
	assert.Equal(t, "second", payloads[1].(types.ChatMessage).Body)
}

func TestRecordsMissingFile(t *testing.T) {
	payloads := collect(t, filepath.Join(t.TempDir(), "absent.md"), types.CategoryChats)
	assert.Empty(t, payloads)
}

func TestRecordsIsRestartable(t *testing.T) {
	path := writeFixture(t, "chats.md", "- [2021-08-06T21:07:24+00:00] **Wendi**: hello (Signal)\n")
	seq := Records(path, types.CategoryChats)

	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}
	assert.Equal(t, 1, first)
	assert.Equal(t, first, second)
}

func TestCallGrammar(t *testing.T) {
	payload, ok := callGrammar{}.TryParse("- **2021-05-25T14:03:11+00:00** | Outgoing | Answered | Duration: 00:04:12 | +1 970 555 0101")
	require.True(t, ok)
	call := payload.(types.CallEntry)
	assert.Equal(t, "Outgoing", call.Direction)
	assert.Equal(t, "Answered", call.Status)
	assert.Equal(t, "00:04:12", call.Duration)
	assert.Equal(t, "+1 970 555 0101", call.Details)
}

func TestContactGrammar(t *testing.T) {
	payload, ok := contactGrammar{}.TryParse("- **John Smith** | Source: WhatsApp")
	require.True(t, ok)
	contact := payload.(types.Contact)
	assert.Equal(t, "John Smith", contact.Name)
	assert.Equal(t, "WhatsApp", contact.SourceApp)

	_, ok = contactGrammar{}.TryParse("- **John Smith** without a source")
	assert.False(t, ok)
}

func TestBrowsingGrammar(t *testing.T) {
	payload, ok := browsingGrammar{}.TryParse("- **2021-08-09T08:15:00+00:00** | [How tabulators work](https://example.com/tab) | Chrome")
	require.True(t, ok)
	entry := payload.(types.BrowsingEntry)
	assert.Equal(t, "How tabulators work", entry.Title)
	assert.Equal(t, "https://example.com/tab", entry.URL)
	assert.Equal(t, "Chrome", entry.Browser)
}

func TestSearchGrammar(t *testing.T) {
	payload, ok := searchGrammar{}.TryParse("- **2021-08-09T08:20:00+00:00** | how to delete signal messages | Google")
	require.True(t, ok)
	entry := payload.(types.SearchEntry)
	assert.Equal(t, "how to delete signal messages", entry.Query)
	assert.Equal(t, "Google", entry.SourceApp)
}

func TestLocationGrammar(t *testing.T) {
	payload, ok := locationGrammar{}.TryParse("- **2021-05-25T07:58:00+00:00** | 39.0639,-108.5506 | 544 Rood Ave, Grand Junction | GPS")
	require.True(t, ok)
	loc := payload.(types.LocationEntry)
	assert.Equal(t, "39.0639,-108.5506", loc.Coords)
	assert.Equal(t, "544 Rood Ave, Grand Junction", loc.Address)
	assert.Equal(t, "GPS", loc.SourceApp)

	// Address may be absent; the single trailing field is the source.
	payload, ok = locationGrammar{}.TryParse("- **2021-05-25T07:58:00+00:00** | 39.0639,-108.5506 | WiFi")
	require.True(t, ok)
	loc = payload.(types.LocationEntry)
	assert.Empty(t, loc.Address)
	assert.Equal(t, "WiFi", loc.SourceApp)
}

func TestGenericGrammarCapsContent(t *testing.T) {
	long := "- " + strings.Repeat("x", 700)
	payload, ok := genericGrammar{}.TryParse(long)
	require.True(t, ok)
	assert.Len(t, payload.(types.GenericEntry).Content, maxGenericContent)

	_, ok = genericGrammar{}.TryParse("not a bullet")
	assert.False(t, ok)
}

func TestParseEmails(t *testing.T) {
	content := strings.Join([]string{
		"### 2021-08-23T22:08:17+00:00 — Re: trusted build schedule",
		"**From:** tina@mesacounty.us → **To:** belinda@mesacounty.us",
		"**Source:** Outlook",
		"<div>Please confirm the <b>schedule</b> for next week.</div>",
		"Second body line.",
		"---",
		"### 2021-08-24T09:00:00+00:00 — FYI",
		"**From:** a@example.com → **To:** b@example.com",
		"No markup here.",
	}, "\n")
	path := writeFixture(t, "emails.md", content)

	payloads := collect(t, path, types.CategoryEmails)
	require.Len(t, payloads, 2)

	first := payloads[0].(types.EmailMessage)
	assert.Equal(t, "2021-08-23T22:08:17+00:00", first.Time)
	assert.Equal(t, "Re: trusted build schedule", first.Subject)
	assert.Equal(t, "tina@mesacounty.us", first.From)
	assert.Equal(t, "belinda@mesacounty.us", first.To)
	assert.Equal(t, "Outlook", first.SourceApp)
	assert.Equal(t, "Please confirm the schedule for next week. Second body line.", first.Preview)

	second := payloads[1].(types.EmailMessage)
	assert.Equal(t, "FYI", second.Subject)
	assert.Equal(t, "No markup here.", second.Preview)
}

func TestParseEmailsPreviewCap(t *testing.T) {
	content := "### 2021-08-23T22:08:17+00:00 — Long one\n" +
		"**From:** a@x.com → **To:** b@x.com\n" +
		strings.Repeat("word ", 200) + "\n"
	path := writeFixture(t, "emails.md", content)

	payloads := collect(t, path, types.CategoryEmails)
	require.Len(t, payloads, 1)
	assert.LessOrEqual(t, len(payloads[0].(types.EmailMessage).Preview), maxEmailPreview)
}

func TestThreadsHeaderAndStarted(t *testing.T) {
	content := strings.Join([]string{
		"### Chat: Signal",
		"**Started:** 2021-08-06",
		"- [2021-08-06T21:07:24+00:00] **Wendi**: Added to MCUA group (Signal)",
	}, "\n")
	path := writeFixture(t, "chats.md", content)

	threads := Threads(path)
	require.Len(t, threads, 1)
	thread := threads[0]
	assert.Equal(t, 1, thread.ID)
	assert.Equal(t, "Signal", thread.SourceApp)
	assert.Equal(t, "2021-08-06", thread.Started)
	assert.Equal(t, []string{"Wendi"}, thread.Participants)
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, "Added to MCUA group", thread.Messages[0].Body)

	summary := thread.Summarize("wendi-woods")
	assert.Equal(t, 1, summary.MessageCount)
	assert.Equal(t, "Signal", summary.SourceApp)
	assert.Equal(t, "2021-08-06T21:07:24+00:00", summary.FirstDate)
}

func TestThreadPreviewCap(t *testing.T) {
	body := strings.TrimSpace(strings.Repeat("word ", 60))
	content := strings.Join([]string{
		"### Chat: Signal",
		"- [2021-08-06T21:07:24+00:00] **Wendi**: " + body + " (Signal)",
	}, "\n")
	path := writeFixture(t, "chats.md", content)

	threads := Threads(path)
	require.Len(t, threads, 1)

	summary := threads[0].Summarize("dev-1")
	assert.Len(t, summary.LastMessagePreview, 150)
	assert.Equal(t, body[:150], summary.LastMessagePreview)
}

func TestThreadsImplicitStart(t *testing.T) {
	content := strings.Join([]string{
		"- [2021-08-06T21:07:24+00:00] **Wendi**: hello there (Telegram)",
		"- [2021-08-06T21:08:00+00:00] **Tina**: hi (Telegram)",
		"### Chat: Signal",
		"- [2021-08-07T10:00:00+00:00] **Joy**: new thread (Signal)",
	}, "\n")
	path := writeFixture(t, "chats.md", content)

	threads := Threads(path)
	require.Len(t, threads, 2)
	assert.Equal(t, "Telegram", threads[0].SourceApp)
	assert.Equal(t, "2021-08-06T21:07:24+00:00", threads[0].Started)
	assert.ElementsMatch(t, []string{"Wendi", "Tina"}, threads[0].Participants)
	assert.Equal(t, "Signal", threads[1].SourceApp)
	assert.Equal(t, 2, threads[1].ID)
}

func TestThreadsEmptyHeaderDropped(t *testing.T) {
	content := strings.Join([]string{
		"### Chat: Signal",
		"**Started:** 2021-08-06",
		"### Chat: iMessage",
		"- [2021-08-07T10:00:00+00:00] **Joy**: only real thread (iMessage)",
	}, "\n")
	path := writeFixture(t, "chats.md", content)

	threads := Threads(path)
	require.Len(t, threads, 1)
	assert.Equal(t, "iMessage", threads[0].SourceApp)
}
