package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// TranscriptEntry is one NDJSON line of a transcript.
type TranscriptEntry struct {
	Timestamp       string `json:"ts"`
	UserID          string `json:"user_id"`
	MessageID       string `json:"message_id"`
	Role            string `json:"role"`
	Content         string `json:"content"`
	Intent          string `json:"intent,omitempty"`
	Recommendations int    `json:"recommendations,omitempty"`
}

// WriteTranscript writes the current conversation to w as NDJSON, one
// message per line in append order.
func (o *Orchestrator) WriteTranscript(w io.Writer) error {
	userID := o.store.UserID()
	enc := json.NewEncoder(w)
	for _, m := range o.store.Messages() {
		entry := TranscriptEntry{
			Timestamp:       m.Timestamp.UTC().Format(time.RFC3339Nano),
			UserID:          userID,
			MessageID:       m.ID,
			Role:            string(m.Role),
			Content:         m.Content,
			Intent:          m.Intent,
			Recommendations: len(m.Recommendations),
		}
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("write transcript entry %s: %w", m.ID, err)
		}
	}
	return nil
}
