// Package services – SubmitService
//
// This file implements job submission: validate the generation request,
// persist its input document to the object store, invoke the compute
// backend through the circuit breaker, and hand back a tracking
// descriptor. Validation failures occur before any side effect: no
// storage write and no backend call.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/breaker"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/domain"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/inference"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/repo"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/storage"
)

// SubmitRequest is the validated-to-be submission payload.
type SubmitRequest struct {
	Prompt      string
	Priority    string
	CallbackURL string
}

// SubmitService coordinates job submission. All dependencies are injected;
// the breaker and store are process-wide singletons shared by reference.
type SubmitService struct {
	// Store is the durable object store for job inputs.
	Store storage.Store
	// Invoker submits work to the compute backend.
	Invoker inference.Invoker
	// Breaker guards Invoker calls.
	Breaker *breaker.Breaker
	// DB is the optional submission ledger handle; nil disables replay
	// and ledger writes.
	DB *gorm.DB

	// EndpointName identifies the downstream model endpoint.
	EndpointName string
	// InputPrefix is the storage prefix for input documents (trailing '/').
	InputPrefix string
	// MaxPromptRunes bounds accepted prompts.
	MaxPromptRunes int
	// EstimatedSeconds is reported in descriptors as the completion hint.
	EstimatedSeconds int
	// StatusBasePath is the public path prefix for status polls,
	// e.g. "/auth/status".
	StatusBasePath string
	// LedgerTTL is the replay window for keyed submissions.
	LedgerTTL time.Duration
}

// Submit validates and executes a generation request for userID. When
// idemKey is non-empty and a prior submission with that key exists inside
// the replay window, the stored descriptor is returned with replayed=true
// and no new work is started.
func (s *SubmitService) Submit(ctx context.Context, userID string, req SubmitRequest, idemKey string) (desc *domain.JobDescriptor, replayed bool, err error) {
	// 1) Validation, before any side effect.
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, false, Validation("prompt must not be empty")
	}
	if n := utf8.RuneCountInString(prompt); n > s.MaxPromptRunes {
		return nil, false, Validation(fmt.Sprintf("prompt exceeds %d characters", s.MaxPromptRunes))
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !domain.ValidPriority(priority) {
		return nil, false, Validation("priority must be \"normal\" or \"high\"")
	}
	if req.CallbackURL != "" {
		u, perr := url.Parse(req.CallbackURL)
		if perr != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, false, Validation("callback_url must be an absolute http(s) URL")
		}
	}

	// 2) Idempotent replay.
	if idemKey != "" && s.DB != nil {
		if prior, lerr := repo.GetSubmissionByKey(ctx, s.DB, userID, idemKey, time.Now().UTC()); lerr == nil {
			return s.descriptorFrom(prior), true, nil
		} else if !errors.Is(lerr, repo.ErrNotFound) {
			log.Warn().Err(lerr).Str("user_id", userID).Msg("idempotency lookup failed; proceeding without replay")
		}
	}

	// 3) Persist the input document.
	jobID := uuid.NewString()
	input := domain.JobInput{
		Prompt:      prompt,
		UserID:      userID,
		JobID:       jobID,
		Priority:    priority,
		CallbackURL: req.CallbackURL,
		CreatedAt:   time.Now().UTC(),
	}
	body, merr := json.Marshal(input)
	if merr != nil {
		return nil, false, Unclassified(merr)
	}
	key := s.inputKey(userID, jobID)
	if perr := s.Store.Put(ctx, key, body, "application/json"); perr != nil {
		return nil, false, Unavailable("storage is temporarily unavailable", perr)
	}

	// 4) Invoke the backend behind the breaker.
	var resp *inference.Response
	cerr := s.Breaker.Execute(ctx, func(ctx context.Context) error {
		r, ierr := s.Invoker.InvokeAsync(ctx, inference.Request{
			EndpointName:  s.EndpointName,
			InputLocation: s.Store.Location(key),
		})
		if ierr != nil {
			return ierr
		}
		resp = r
		return nil
	})
	if cerr != nil {
		if errors.Is(cerr, breaker.ErrOpen) {
			return nil, false, Unavailable("image generation is temporarily unavailable, retry later", cerr)
		}
		return nil, false, Inference("image generation request failed", cerr)
	}

	// 5) Ledger insert, best-effort.
	if s.DB != nil {
		sub := &domain.Submission{
			ID:              uuid.NewString(),
			UserID:          userID,
			JobID:           jobID,
			InferenceID:     resp.InferenceID,
			OutputLocation:  resp.OutputLocation,
			FailureLocation: resp.FailureLocation,
			Prompt:          prompt,
			Priority:        priority,
			CallbackURL:     req.CallbackURL,
		}
		var keyPtr *string
		if idemKey != "" {
			keyPtr = &idemKey
		}
		if lerr := repo.CreateSubmission(ctx, s.DB, sub, keyPtr, s.LedgerTTL); lerr != nil {
			if errors.Is(lerr, repo.ErrDuplicate) && idemKey != "" {
				// Lost a race with a concurrent retry carrying the same key:
				// serve the stored row.
				if prior, gerr := repo.GetSubmissionByKey(ctx, s.DB, userID, idemKey, time.Now().UTC()); gerr == nil {
					return s.descriptorFrom(prior), true, nil
				}
			}
			log.Warn().Err(lerr).Str("job_id", jobID).Msg("ledger insert failed; descriptor still served")
		}
	}

	return &domain.JobDescriptor{
		JobID:                      jobID,
		InferenceID:                resp.InferenceID,
		OutputLocation:             resp.OutputLocation,
		FailureLocation:            resp.FailureLocation,
		EstimatedCompletionSeconds: s.EstimatedSeconds,
		StatusURL:                  s.statusURL(jobID),
		UserID:                     userID,
	}, false, nil
}

// inputKey derives the deterministic storage key for a job input.
func (s *SubmitService) inputKey(userID, jobID string) string {
	return fmt.Sprintf("%s%s/%s.json", s.InputPrefix, userID, jobID)
}

// statusURL renders the poll path for a job.
func (s *SubmitService) statusURL(jobID string) string {
	return path.Join(s.StatusBasePath, jobID)
}

// descriptorFrom rebuilds a descriptor from a ledger row.
func (s *SubmitService) descriptorFrom(sub *domain.Submission) *domain.JobDescriptor {
	return &domain.JobDescriptor{
		JobID:                      sub.JobID,
		InferenceID:                sub.InferenceID,
		OutputLocation:             sub.OutputLocation,
		FailureLocation:            sub.FailureLocation,
		EstimatedCompletionSeconds: s.EstimatedSeconds,
		StatusURL:                  s.statusURL(sub.JobID),
		UserID:                     sub.UserID,
	}
}
