package types

// Source families a device can come from.
const (
	SourceCellebrite = "cellebrite" // line-oriented markdown exports
	SourceAxiom      = "axiom"      // bulk per-category JSON extraction dumps
)

// Device is one forensic extraction unit. For the bulk-JSON family, several
// extractions sharing a case-number prefix are merged into one composite
// device at presentation time; the per-extraction records stay separate and
// only counts and query results are combined.
type Device struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Type         string           `json:"type"`
	Owner        string           `json:"owner"`
	Source       string           `json:"source"`
	Categories   map[Category]int `json:"categories"`
	TotalRecords int              `json:"total_records"`
	Extractions  []Extraction     `json:"extractions,omitempty"`
	Merged       bool             `json:"merged,omitempty"`
}

// Extraction is one underlying extraction of a composite device.
type Extraction struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Suffix       string `json:"suffix"`
	TotalRecords int    `json:"total_records,omitempty"`
}

// Stats summarizes the index for operators: counts, per-category totals and
// the last successful index time so the serving layer can surface staleness.
type Stats struct {
	TotalDevices      int            `json:"total_devices"`
	CellebriteDevices int            `json:"cellebrite_devices"`
	AxiomDevices      int            `json:"axiom_devices"`
	Categories        map[string]int `json:"categories"`
	LastIndexed       int64          `json:"last_indexed"`
}
