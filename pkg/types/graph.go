package types

// Node classification values.
const (
	NodePrimary   = "primary"   // curated case participant
	NodeSecondary = "secondary" // inferred from repeated cross-device appearance
)

// Node is a resolved identity in the relationship graph. The ID is a stable
// content hash of the normalized name, so repeated runs over the same data
// produce identical identifiers. Nodes accumulate counts during a build and
// are never deleted within a run.
type Node struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Type          string        `json:"type"`
	Role          string        `json:"role"`
	Devices       []string      `json:"devices"`
	ContactCount  int           `json:"contact_count"`
	CallCount     int           `json:"call_count"`
	MessageCount  int           `json:"message_count"`
	EmailCount    int           `json:"email_count"`
	AppearsOn     []string      `json:"appears_on"`
	CaseFiles     []FileMention `json:"case_files,omitempty"`
	CaseFileCount int           `json:"case_file_count"`
	TotalMentions int           `json:"total_mentions"`
}

// EdgeContribution is one typed line of evidence backing an edge. Repeated
// contributions of the same type merge by incrementing Count (or
// MessageCount for chat contributions) instead of duplicating entries.
type EdgeContribution struct {
	Type         string   `json:"type"` // "shared_contact" or "chat"
	Count        int      `json:"count,omitempty"`
	Platform     string   `json:"platform,omitempty"`
	MessageCount int      `json:"message_count,omitempty"`
	DateRange    string   `json:"date_range,omitempty"`
	Devices      []string `json:"appears_on_devices,omitempty"`
}

// Edge connects an unordered pair of nodes. Weight is strictly additive
// across contribution events and equals the sum of contribution counts.
type Edge struct {
	Source        string             `json:"source"`
	Target        string             `json:"target"`
	Weight        int                `json:"weight"`
	Contributions []EdgeContribution `json:"types"`
}

// Network is the full graph, edges sorted by descending weight.
type Network struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Connection pairs a neighboring node with the edge that reaches it.
type Connection struct {
	Person Node `json:"person"`
	Edge   Edge `json:"edge"`
}

// PersonDetails is a node plus every edge touching it, sorted by weight
// descending.
type PersonDetails struct {
	Person           Node         `json:"person"`
	Connections      []Connection `json:"connections"`
	TotalConnections int          `json:"total_connections"`
}

// FileMention records literal name-pattern hits for one person in one
// legal-corpus file.
type FileMention struct {
	Filename string `json:"filename"`
	Case     string `json:"case"`
	CaseType string `json:"case_type,omitempty"`
	Path     string `json:"path,omitempty"`
	Mentions int    `json:"mentions"`
}
