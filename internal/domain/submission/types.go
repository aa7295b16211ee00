package submission

import (
	"context"
	"time"
)

// BusinessRecordRef identifies one business record created for a submission
type BusinessRecordRef struct {
	ID         string `json:"id"`
	ObjectType string `json:"objectType"`
}

// Result aggregates the outcome of one submission saga
type Result struct {
	TrackingID        string              `json:"trackingId"`
	BusinessRecordIDs []BusinessRecordRef `json:"businessRecordIds"`
	RelationshipIDs   []string            `json:"relationshipIds"`
	IsDuplicate       bool                `json:"isDuplicate"`
	Warning           string              `json:"warning,omitempty"`
	DurationMs        int64               `json:"durationMs"`
}

// Outcome is the write-only diagnostic record handed to the audit recorder
// after every submission, successful or not
type Outcome struct {
	ContextID   string
	FormID      string
	SessionID   string
	TrackingID  string
	Success     bool
	IsDuplicate bool
	Warning     string
	Error       string
	DurationMs  int64
	SubmittedAt time.Time
}

// Recorder receives submission outcomes for diagnostics. Implementations
// must never fail the submission response; recording is fire-and-forget.
type Recorder interface {
	RecordOutcome(ctx context.Context, outcome Outcome)
}
