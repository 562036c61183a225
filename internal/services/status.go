// Package services – StatusService
//
// This file derives job status by scanning the artifact store. There is no
// job table to consult: the backend writes a completed artifact or a
// failure payload whose key embeds the job id, and this service reports
// whichever it finds first (completed wins ties). No artifact means
// "processing": queued, running, and unknown job ids are indistinguishable
// here by design, and a just-written artifact may not be visible yet;
// pollers retry. Storage errors during the scan degrade to "no match"
// rather than failing the poll.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/domain"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/repo"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/storage"
)

// StatusService answers "what is the state of job X" from storage scans.
type StatusService struct {
	// Store is the artifact store to scan.
	Store storage.Store
	// DB optionally enriches responses with the ledger's creation time.
	DB *gorm.DB

	// OutputPrefix and FailurePrefix delimit the scanned key spaces.
	OutputPrefix  string
	FailurePrefix string
	// PresignTTL is the validity window of generated download URLs.
	PresignTTL time.Duration
	// ListPageSize bounds each prefix scan.
	ListPageSize int
	// MaxErrorChars bounds failure messages served to clients.
	MaxErrorChars int
}

// Status derives the current status of jobID for userID.
func (s *StatusService) Status(ctx context.Context, userID, jobID string) (*domain.JobStatus, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, Validation("job_id must not be empty")
	}

	st := &domain.JobStatus{JobID: jobID, UserID: userID, Status: domain.StatusProcessing}
	s.enrichCreatedAt(ctx, userID, jobID, st)

	// Completed first: if both artifacts somehow exist, completed wins.
	if obj, ok := s.findArtifact(ctx, s.OutputPrefix, jobID); ok {
		url, err := s.Store.PresignGet(ctx, obj.Key, s.PresignTTL)
		if err != nil {
			// Degrade to processing; the next poll will retry the presign.
			log.Error().Err(err).Str("job_id", jobID).Str("key", obj.Key).
				Msg("presign failed for completed artifact")
			return st, nil
		}
		st.Status = domain.StatusCompleted
		st.OutputURL = url
		if !obj.LastModified.IsZero() {
			t := obj.LastModified
			st.CompletedAt = &t
		}
		return st, nil
	}

	if obj, ok := s.findArtifact(ctx, s.FailurePrefix, jobID); ok {
		msg := "generation failed"
		if body, err := s.Store.Get(ctx, obj.Key); err != nil {
			log.Error().Err(err).Str("job_id", jobID).Str("key", obj.Key).
				Msg("failure artifact unreadable")
			return st, nil
		} else if detail := strings.TrimSpace(string(body)); detail != "" {
			msg = truncateRunes(detail, s.MaxErrorChars)
		}
		st.Status = domain.StatusFailed
		st.ErrorMessage = msg
		if !obj.LastModified.IsZero() {
			t := obj.LastModified
			st.CompletedAt = &t
		}
		return st, nil
	}

	return st, nil
}

// findArtifact scans one prefix for a key containing jobID. Scan errors
// are logged and reported as "no match" so a transient storage failure
// degrades the poll instead of breaking it.
func (s *StatusService) findArtifact(ctx context.Context, prefix, jobID string) (storage.Object, bool) {
	objs, err := s.Store.List(ctx, prefix, s.ListPageSize)
	if err != nil {
		log.Error().Err(err).Str("prefix", prefix).Str("job_id", jobID).
			Msg("artifact scan failed")
		return storage.Object{}, false
	}
	for _, o := range objs {
		if strings.Contains(o.Key, jobID) {
			return o, true
		}
	}
	return storage.Object{}, false
}

// enrichCreatedAt fills CreatedAt from the ledger when a row exists. The
// ledger never influences the derived status itself.
func (s *StatusService) enrichCreatedAt(ctx context.Context, userID, jobID string, st *domain.JobStatus) {
	if s.DB == nil {
		return
	}
	sub, err := repo.GetSubmissionByJob(ctx, s.DB, userID, jobID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Str("job_id", jobID).Msg("ledger lookup failed")
		}
		return
	}
	t := sub.CreatedAt
	st.CreatedAt = &t
}

// truncateRunes clips s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
