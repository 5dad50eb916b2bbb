package domain

import "time"

// Interaction is one answered question as recorded by the history sink.
type Interaction struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Intent     Intent    `json:"intent"`
	ChunkIDs   []string  `json:"chunk_ids"`
	Model      string    `json:"model"`
	Degraded   bool      `json:"degraded"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type Feedback struct {
	ID            string    `json:"id"`
	InteractionID string    `json:"interaction_id"`
	Rating        int       `json:"rating"`
	Comment       string    `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	MinFeedbackRating = 1
	MaxFeedbackRating = 5
)
