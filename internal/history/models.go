package history

import "time"

// Attempt is one finished conversion attempt.
type Attempt struct {
	ID             int64
	ConversationID string
	Pair           string
	FileName       string
	Outcome        string
	Detail         string
	InputBytes     int64
	OutputBytes    int64
	Duration       time.Duration
	FinishedAt     time.Time
}

// OutcomeCount aggregates attempts by outcome.
type OutcomeCount struct {
	Outcome string
	Count   int
}
