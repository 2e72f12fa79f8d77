package delivery

// Task is one delivery job as carried on the queue. The attempt key is
// (EventID, DestinationID); the payload and dispatch parameters are snapshotted
// at enqueue time so destination mutations never affect queued jobs.
type Task struct {
	EventID       string            `json:"event_id"`
	DestinationID string            `json:"destination_id"`
	AccountID     string            `json:"account_id"`
	URL           string            `json:"url"`
	Method        string            `json:"method"`
	Headers       map[string]string `json:"headers,omitempty"`
	Payload       map[string]any    `json:"payload"`
	Attempt       int               `json:"attempt"`
	PublishedAt   string            `json:"published_at"`            // RFC3339
	TraceHeaders  map[string]string `json:"trace_headers,omitempty"` // OTel trace propagation headers
}
