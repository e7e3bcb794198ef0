package types

// Discovery is a significance-ranked flagged finding. Discoveries are
// recomputed wholesale on every index pass and never individually mutated.
// Flames is the 1-3 significance tier and always equals the maximum tier
// among the matched tags or conditions that produced the finding.
type Discovery struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Category  string   `json:"category"`
	Flames    int      `json:"flames"`
	DeviceID  string   `json:"device_id,omitempty"` // empty for cross-device findings
	Owner     string   `json:"owner"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp,omitempty"`
	Verified  bool     `json:"verified"` // true only for the curated pre-seeded set
	Tags      []string `json:"tags"`
	DataType  Category `json:"data_type"`
	SourceApp string   `json:"source_app,omitempty"`
}

// Discovery presentation categories.
const (
	DiscoveryCommunications = "Communications"
	DiscoverySearches       = "Searches"
	DiscoveryPasswords      = "Passwords"
	DiscoveryLocations      = "Locations"
	DiscoveryCrossDevice    = "Cross-Device"
)
