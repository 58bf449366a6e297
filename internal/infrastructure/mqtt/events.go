package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// StoreUpdatedEvent announces that an aggregation run replaced the store.
type StoreUpdatedEvent struct {
	RunID        string    `json:"run_id"`
	Records      int       `json:"records"`
	FilesFound   int       `json:"files_found"`
	FilesUsed    int       `json:"files_used"`
	FilesSkipped int       `json:"files_skipped"`
	Timestamp    time.Time `json:"timestamp"`
}

// SidecarEditedEvent announces an operator edit of sidecar values.
type SidecarEditedEvent struct {
	SourceFile string         `json:"source_file"`
	Rows       int64          `json:"rows"`
	Values     map[string]any `json:"values"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AggregateCommand requests an aggregation run. All fields are optional.
type AggregateCommand struct {
	RequestID string `json:"request_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// PublishStoreUpdated publishes ev retained, so a dashboard connecting later
// still learns about the last update.
func (c *Client) PublishStoreUpdated(ev StoreUpdatedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encoding store update: %w", ErrPublishFailed, err)
	}
	return c.publish(c.topics.StoreUpdated(), payload, true)
}

// PublishSidecarEdited publishes ev (not retained).
func (c *Client) PublishSidecarEdited(ev SidecarEditedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encoding sidecar edit: %w", ErrPublishFailed, err)
	}
	return c.publish(c.topics.SidecarEdited(), payload, false)
}

// DecodeAggregateCommand parses a command payload. An empty payload is a
// command with no fields set.
func DecodeAggregateCommand(payload []byte) (AggregateCommand, error) {
	var cmd AggregateCommand
	if len(payload) == 0 {
		return cmd, nil
	}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return AggregateCommand{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return cmd, nil
}
