// Package repo implements the persistence layer for the submission ledger.
// This file provides helpers for Submission rows, which back idempotent
// replay of the generate endpoint and created_at enrichment of status
// responses. The ledger is never the source of truth for job status.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/domain"
)

// ErrNotFound indicates no matching ledger row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate indicates a submission already exists for the given
// (user_id, idempotency key) pair.
var ErrDuplicate = errors.New("duplicate")

// CreateSubmission inserts a ledger row. key may be nil for submissions
// without an Idempotency-Key; keyed rows become replayable until expiry.
func CreateSubmission(ctx context.Context, db *gorm.DB, sub *domain.Submission, key *string, ttl time.Duration) error {
	now := time.Now().UTC()
	sub.Key = key
	sub.CreatedAt = now
	sub.ExpiresAt = now.Add(ttl)
	if err := db.WithContext(ctx).Create(sub).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetSubmissionByKey returns the non-expired keyed submission for
// (userID, key), or ErrNotFound.
func GetSubmissionByKey(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.Submission, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var sub domain.Submission
	err := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND expires_at > ?", userID, key, now).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubmissionByJob returns the ledger row for (userID, jobID), or
// ErrNotFound. Used to enrich status responses with the creation time.
func GetSubmissionByJob(ctx context.Context, db *gorm.DB, userID, jobID string) (*domain.Submission, error) {
	var sub domain.Submission
	err := db.WithContext(ctx).
		Where("user_id = ? AND job_id = ?", userID, jobID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
