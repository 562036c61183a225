// Generation submission endpoint.
//
//   - POST /generate
//
// The handler is transport-thin: it binds the JSON payload, pulls the
// authenticated identity and validated Idempotency-Key from the context,
// and delegates to the submission service. Fresh submissions return 202
// Accepted with the tracking descriptor; idempotent replays return the
// stored descriptor with 200.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/domain"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/http/middleware"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/services"
)

//
// Service contracts (context-aware)
//

// SubmitService accepts generation requests. Implementations must be safe
// for concurrent use and honor the provided context.
type SubmitService interface {
	// Submit validates and starts a generation job, or replays the stored
	// descriptor when idemKey matches a prior submission.
	Submit(ctx context.Context, userID string, req services.SubmitRequest, idemKey string) (*domain.JobDescriptor, bool, error)
}

// StatusService resolves the derived state of a submitted job.
type StatusService interface {
	Status(ctx context.Context, userID, jobID string) (*domain.JobStatus, error)
}

// TokenIssuer mints signed identity tokens.
type TokenIssuer interface {
	Issue(userID string, ttl time.Duration) (string, time.Time, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the gateway. It depends on service
// interfaces so transport stays separate from orchestration.
type Handlers struct {
	submitSvc SubmitService
	statusSvc StatusService
	issuer    TokenIssuer

	defaultTTL time.Duration
	maxTTL     time.Duration

	health HealthDeps
}

// New constructs a Handlers instance bound to the given services.
func New(submitSvc SubmitService, statusSvc StatusService, issuer TokenIssuer, defaultTTL, maxTTL time.Duration, health HealthDeps) *Handlers {
	return &Handlers{
		submitSvc:  submitSvc,
		statusSvc:  statusSvc,
		issuer:     issuer,
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
		health:     health,
	}
}

//
// DTOs
//

// GenerateRequest is the JSON payload for submitting a generation job.
type GenerateRequest struct {
	// Prompt is the text description of the desired image (required).
	Prompt string `json:"prompt" example:"a red bicycle leaning on a brick wall"`
	// Priority is "normal" (default) or "high".
	Priority string `json:"priority,omitempty" example:"normal"`
	// CallbackURL is an optional absolute http(s) URL recorded with the job.
	CallbackURL string `json:"callback_url,omitempty" example:"https://client.example/hooks/done"`
}

//
// Handlers
//

// Generate godoc
// @ID          generate
// @Summary     Submit an image generation job
// @Description Validates the prompt, persists the job input, and starts asynchronous generation. Retries carrying the same Idempotency-Key replay the original descriptor.
// @Tags        Jobs
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  true   "Bearer token"
// @Param       Idempotency-Key  header  string  false  "Deduplication key for safe retries"
// @Param       body             body    handlers.GenerateRequest  true  "Generation payload"
//
// @Success     202  {object}  domain.JobDescriptor
// @Success     200  {object}  domain.JobDescriptor  "Idempotent replay"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     429  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /generate [post]
func (h *Handlers) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	desc, replayed, err := h.submitSvc.Submit(c.Request.Context(), middleware.UserIDFrom(c), services.SubmitRequest{
		Prompt:      req.Prompt,
		Priority:    req.Priority,
		CallbackURL: req.CallbackURL,
	}, idemKey)
	if err != nil {
		failFromErr(c, err)
		return
	}

	if replayed {
		ok(c, http.StatusOK, desc)
		return
	}
	ok(c, http.StatusAccepted, desc)
}
