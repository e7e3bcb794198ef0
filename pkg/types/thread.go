package types

// ChatThread is a grouping of chat messages with contiguous provenance in
// one device's chat export. Thread IDs are sequence numbers scoped to the
// device; a thread owns its messages exclusively.
type ChatThread struct {
	DeviceID           string   `json:"device_id"`
	ThreadID           int      `json:"thread_id"`
	SourceApp          string   `json:"source"`
	Started            string   `json:"started"`
	Participants       []string `json:"participants"`
	MessageCount       int      `json:"message_count"`
	FirstDate          string   `json:"first_date"`
	LastDate           string   `json:"last_date"`
	LastMessagePreview string   `json:"last_message_preview"`
}
