package v1

import "time"

// DebateStatus represents the lifecycle status of a debate session.
type DebateStatus string

const (
	DebateStatusPending   DebateStatus = "pending"
	DebateStatusRunning   DebateStatus = "running"
	DebateStatusCompleted DebateStatus = "completed"
	DebateStatusFailed    DebateStatus = "failed"
)

// ActionItem is a follow-up generated from the consensus ranking.
type ActionItem struct {
	Agent   string `json:"agent"`
	Summary string `json:"summary"`
	Rank    int    `json:"rank"`
}

// TopicResult holds the outcome of one debated topic.
type TopicResult struct {
	Topic       string             `json:"topic"`
	Analyses    map[string]string  `json:"analyses"`
	Rebuttals   map[string]string  `json:"rebuttals"`
	Votes       map[string]float64 `json:"votes"`
	Consensus   string             `json:"consensus"`
	ActionItems []ActionItem       `json:"action_items"`
}

// DebateSession represents one multi-agent deliberation.
type DebateSession struct {
	ID          string         `json:"id"`
	Topics      []string       `json:"topics"`
	Agents      []string       `json:"agents"`
	Results     []*TopicResult `json:"results"`
	Status      DebateStatus   `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	Error       string         `json:"error,omitempty"`
}

// Clone returns a copy safe to read while the session is still running.
// Topic results are immutable once published, so their pointers are shared.
func (s *DebateSession) Clone() *DebateSession {
	c := *s
	if s.Topics != nil {
		c.Topics = append([]string(nil), s.Topics...)
	}
	if s.Agents != nil {
		c.Agents = append([]string(nil), s.Agents...)
	}
	if s.Results != nil {
		c.Results = append([]*TopicResult(nil), s.Results...)
	}
	if s.CompletedAt != nil {
		v := *s.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}
