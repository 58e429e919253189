package domain

import "time"

// Job is one deferred side effect, persisted until its handler succeeds.
// Params is an opaque JSON blob passed back to the registered handler.
// NotBefore orders retrieval and delays retries; it is a scheduling hint,
// not a correctness requirement.
type Job struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	HandlerName string     `json:"handler_name"`
	Params      string     `json:"params"`
	NotBefore   *time.Time `gorm:"index" json:"not_before,omitempty"`
	CreatedAt   time.Time
}

// Ready reports whether the job may be dispatched at the given time.
func (j *Job) Ready(now time.Time) bool {
	return j.NotBefore == nil || !now.Before(*j.NotBefore)
}
