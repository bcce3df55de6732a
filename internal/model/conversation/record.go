package conversation

import "time"

// TranscriptRecord is the durable artifact produced when a session ends. It is
// immutable once created.
type TranscriptRecord struct {
	ID              string    `json:"id"`
	SessionKey      string    `json:"sessionKey"`
	AgentID         string    `json:"agentId"`
	CallerNumber    string    `json:"callerNumber,omitempty"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt"`
	DurationSeconds float64   `json:"durationSeconds"`
	Transcript      string    `json:"transcript"`
	Summary         string    `json:"summary"`
	SummaryFailed   bool      `json:"summaryFailed,omitempty"`
}
