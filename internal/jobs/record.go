package jobs

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

var (
	// ErrNotFound covers unknown, expired, consumed and foreign tokens alike.
	ErrNotFound    = errors.New("job not found")
	ErrRateLimited = errors.New("too many generation requests")
	// ErrTerminal is returned when something tries to rewrite a finished job.
	ErrTerminal = errors.New("job already finished")
)

// Record is the JSON document stored under a job token.
type Record struct {
	Status   Status          `json:"status"`
	Progress int             `json:"progress"`
	Asset    string          `json:"asset"`
	UserID   uint64          `json:"user"`
	Input    json.RawMessage `json:"input"`
	// Response holds the generator payload as a JSON string once completed.
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}

// ownedBy reports whether the record belongs to userID and asset.
func (r *Record) ownedBy(userID uint64, asset string) bool {
	return r.UserID == userID && r.Asset == asset
}

// JobError carries the message a failed worker stored.
type JobError struct {
	Message string
}

func (e *JobError) Error() string { return e.Message }
