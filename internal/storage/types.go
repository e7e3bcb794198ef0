package storage

import "github.com/scrypster/casefile/pkg/types"

// PaginatedResult is a paginated result set.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of matching items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PerPage is the number of items per page.
	PerPage int
}

// RecordHit is one stored record as returned by queries: the decoded
// category-specific payload plus its partition coordinates.
type RecordHit struct {
	DeviceID  string         `json:"device_id"`
	Category  types.Category `json:"category"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// QueryOptions filters record queries. DateFrom/DateTo are calendar dates
// (YYYY-MM-DD); DateTo is inclusive through the end of its day. The
// substring Query is matched case-insensitively against the record's full
// flattened searchable text.
type QueryOptions struct {
	DeviceIDs []string // empty means all devices
	Category  types.Category
	Query     string
	DateFrom  string
	DateTo    string
	Page      int
	PerPage   int
}

// ThreadOptions filters chat-thread queries. A thread matches the date
// window when its span overlaps it: last message on or after DateFrom,
// first message on or before the end of DateTo. Search matches
// participants, preview or source, case-insensitively.
type ThreadOptions struct {
	DeviceIDs []string
	Search    string
	DateFrom  string
	DateTo    string
	Page      int
	PerPage   int
}

// Discovery sort modes.
const (
	SortImportance = "importance"
	SortDateDesc   = "date"
	SortDateAsc    = "date_asc"
)

// DiscoveryOptions filters discovery queries. Category and Person accept
// "all" (or empty) for no filter; Person matches owner or tags.
type DiscoveryOptions struct {
	Category string
	Person   string
	Sort     string
	Page     int
	PerPage  int
}

const (
	defaultPerPage     = 100
	defaultListPerPage = 50
	maxPerPage         = 1000
)

// Normalize applies pagination defaults and bounds.
func (o *QueryOptions) Normalize() {
	o.Page, o.PerPage = normalizePage(o.Page, o.PerPage, defaultPerPage)
}

// Normalize applies pagination defaults and bounds.
func (o *ThreadOptions) Normalize() {
	o.Page, o.PerPage = normalizePage(o.Page, o.PerPage, defaultListPerPage)
}

// Normalize applies pagination defaults, bounds and the default sort mode.
func (o *DiscoveryOptions) Normalize() {
	o.Page, o.PerPage = normalizePage(o.Page, o.PerPage, defaultListPerPage)
	switch o.Sort {
	case SortImportance, SortDateDesc, SortDateAsc:
	default:
		o.Sort = SortImportance
	}
	if o.Category == "" {
		o.Category = "all"
	}
	if o.Person == "" {
		o.Person = "all"
	}
}

func normalizePage(page, perPage, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = def
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// Offset is the SQL offset for the current page.
func Offset(page, perPage int) int {
	return (page - 1) * perPage
}

// EndOfDay extends an inclusive YYYY-MM-DD upper bound to the last second
// of that day so ISO-8601 string comparison keeps same-day records.
func EndOfDay(date string) string {
	if date == "" {
		return ""
	}
	return date + "T23:59:59"
}
