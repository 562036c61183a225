package domain

import "time"

// Submission is the ledger row recorded after a successful backend
// invocation. It exists for two purposes only: replaying descriptors for
// idempotent retries (Idempotency-Key header) and enriching status
// responses with the original creation time. Job status is never derived
// from this table; the artifact store remains the source of truth.
//
// Key is a pointer so rows without an idempotency key do not collide on the
// (user_id, key) unique index; SQLite treats NULLs as distinct.
type Submission struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID          string    `json:"user_id"          gorm:"type:varchar(64);not null;index:idx_user_submissions;uniqueIndex:ux_submissions_user_key,priority:1"`
	Key             *string   `json:"-"                gorm:"type:varchar(200);uniqueIndex:ux_submissions_user_key,priority:2"`
	JobID           string    `json:"job_id"           gorm:"type:char(36);not null;uniqueIndex:ux_submissions_job"`
	InferenceID     string    `json:"inference_id"     gorm:"type:varchar(128);not null"`
	OutputLocation  string    `json:"output_location"  gorm:"type:text;not null"`
	FailureLocation string    `json:"failure_location" gorm:"type:text;not null"`
	Prompt          string    `json:"prompt"           gorm:"type:text;not null"`
	Priority        string    `json:"priority"         gorm:"type:varchar(16);not null;default:'normal'"`
	CallbackURL     string    `json:"callback_url"     gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"-"` // replay window end for keyed rows
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "submissions" }
