package store

import (
	"encoding/json"
	"time"

	"github.com/hookline/hookline/internal/delivery"
)

// Account is a tenant owning destinations and a shared-secret credential.
type Account struct {
	ID          string    `json:"account_id"`
	Name        string    `json:"account_name"`
	SecretToken string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Destination is one HTTP endpoint an account wants events forwarded to.
type Destination struct {
	ID        string            `json:"destination_id"`
	AccountID string            `json:"account_id"`
	URL       string            `json:"url"`
	Method    string            `json:"http_method"`
	Headers   map[string]string `json:"headers"`
	CreatedAt time.Time         `json:"created_at"`
}

// Attempt is one delivery log row, keyed by (event, destination).
type Attempt struct {
	EventID       string          `json:"event_id"`
	DestinationID string          `json:"destination_id"`
	AccountID     string          `json:"account_id"`
	ReceivedAt    time.Time       `json:"received_timestamp"`
	ProcessedAt   *time.Time      `json:"processed_timestamp,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Status        delivery.Status `json:"status"`
	Attempts      int             `json:"attempts"`
	HTTPStatus    int             `json:"http_status,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AttemptFilter narrows ListAttempts queries. Zero values are ignored.
type AttemptFilter struct {
	EventID       string
	AccountID     string
	DestinationID string
	Status        delivery.Status
	From          time.Time
	To            time.Time
	Limit         int
}

// Stats aggregates delivery log rows by status.
type Stats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Success    int64 `json:"success"`
	Failed     int64 `json:"failed"`
}

// StaleAttempt is a processing row past the grace period, joined with the
// dispatch parameters needed to republish it.
type StaleAttempt struct {
	EventID       string
	DestinationID string
	AccountID     string
	URL           string
	Method        string
	Headers       map[string]string
	Payload       map[string]any
	Attempts      int
}
