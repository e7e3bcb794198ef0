package types

import "strings"

// Payload is the category-specific body of a record. Each evidence category
// has exactly one concrete payload type. Timestamp returns the record's
// ISO-8601 timestamp string, or "" for categories without inherent time
// (stored credentials, notes). Searchable returns the flattened text used
// for case-insensitive substring search; it is assembled once from every
// populated field, not just the displayed ones.
type Payload interface {
	Timestamp() string
	Searchable() string
}

// Record is one evidentiary fact owned by a device. Records are immutable
// once written; re-indexing a source file replaces the whole
// (device, category) partition rather than mutating individual records.
type Record struct {
	DeviceID   string   `json:"device_id"`
	Category   Category `json:"category"`
	Timestamp  string   `json:"timestamp"`
	Payload    Payload  `json:"payload"`
	Searchable string   `json:"-"`
}

// NewRecord builds a Record from a payload, deriving the timestamp and the
// searchable blob at construction time.
func NewRecord(deviceID string, category Category, p Payload) Record {
	return Record{
		DeviceID:   deviceID,
		Category:   category,
		Timestamp:  p.Timestamp(),
		Payload:    p,
		Searchable: p.Searchable(),
	}
}

// joinFields concatenates non-empty field values with single spaces.
func joinFields(fields ...string) string {
	parts := fields[:0:0]
	for _, f := range fields {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// ChatMessage is one chat line: `- [<ts>] **<sender>**: <body> (<source>)`.
// SourceApp holds the trailing parenthesized application tag when present.
type ChatMessage struct {
	Time      string `json:"timestamp"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	SourceApp string `json:"source_app"`
}

func (m ChatMessage) Timestamp() string { return m.Time }
func (m ChatMessage) Searchable() string {
	return joinFields(m.Time, m.Sender, m.Body, m.SourceApp)
}

// CallEntry is one call log line.
type CallEntry struct {
	Time      string `json:"timestamp"`
	Direction string `json:"direction"`
	Status    string `json:"status"`
	Duration  string `json:"duration"`
	Details   string `json:"details"`
}

func (c CallEntry) Timestamp() string { return c.Time }
func (c CallEntry) Searchable() string {
	return joinFields(c.Time, c.Direction, c.Status, c.Duration, c.Details)
}

// Contact is one address-book entry with the platform it came from.
type Contact struct {
	Name      string `json:"name"`
	SourceApp string `json:"source_app"`
}

func (c Contact) Timestamp() string  { return "" }
func (c Contact) Searchable() string { return joinFields(c.Name, c.SourceApp) }

// BrowsingEntry is one browser-history line.
type BrowsingEntry struct {
	Time    string `json:"timestamp"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Browser string `json:"browser"`
}

func (b BrowsingEntry) Timestamp() string { return b.Time }
func (b BrowsingEntry) Searchable() string {
	return joinFields(b.Time, b.Title, b.URL, b.Browser)
}

// SearchEntry is one search-history line.
type SearchEntry struct {
	Time      string `json:"timestamp"`
	Query     string `json:"query"`
	SourceApp string `json:"source_app"`
}

func (s SearchEntry) Timestamp() string  { return s.Time }
func (s SearchEntry) Searchable() string { return joinFields(s.Time, s.Query, s.SourceApp) }

// EmailMessage is one parsed email header block plus a body preview capped
// at 300 characters.
type EmailMessage struct {
	Time      string `json:"timestamp"`
	Subject   string `json:"subject"`
	From      string `json:"from_addr"`
	To        string `json:"to_addr"`
	SourceApp string `json:"source_app"`
	Preview   string `json:"preview"`
}

func (e EmailMessage) Timestamp() string { return e.Time }
func (e EmailMessage) Searchable() string {
	return joinFields(e.Time, e.Subject, e.From, e.To, e.SourceApp, e.Preview)
}

// LocationEntry is one location fix.
type LocationEntry struct {
	Time      string `json:"timestamp"`
	Coords    string `json:"coords"`
	Address   string `json:"address"`
	SourceApp string `json:"source_app"`
}

func (l LocationEntry) Timestamp() string { return l.Time }
func (l LocationEntry) Searchable() string {
	return joinFields(l.Time, l.Coords, l.Address, l.SourceApp)
}

// GenericEntry covers the free-text categories (notes, passwords,
// voicemails): any `- ` bullet line, content capped at 500 characters.
type GenericEntry struct {
	Content string `json:"content"`
}

func (g GenericEntry) Timestamp() string  { return "" }
func (g GenericEntry) Searchable() string { return g.Content }
