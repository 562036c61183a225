package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/domain"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/services"
)

// stubSubmit lets each test choose the submission outcome.
type stubSubmit struct {
	fn func(ctx context.Context, userID string, req services.SubmitRequest, idemKey string) (*domain.JobDescriptor, bool, error)
}

func (s *stubSubmit) Submit(ctx context.Context, userID string, req services.SubmitRequest, idemKey string) (*domain.JobDescriptor, bool, error) {
	return s.fn(ctx, userID, req, idemKey)
}

// stubStatus lets each test choose the status outcome.
type stubStatus struct {
	fn func(ctx context.Context, userID, jobID string) (*domain.JobStatus, error)
}

func (s *stubStatus) Status(ctx context.Context, userID, jobID string) (*domain.JobStatus, error) {
	return s.fn(ctx, userID, jobID)
}

// stubIssuer mints canned tokens.
type stubIssuer struct {
	fn func(userID string, ttl time.Duration) (string, time.Time, error)
}

func (s *stubIssuer) Issue(userID string, ttl time.Duration) (string, time.Time, error) {
	return s.fn(userID, ttl)
}

func testRouter(h *Handlers, uid string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if uid != "" {
		r.Use(func(c *gin.Context) { c.Set("userID", uid); c.Next() })
	}
	r.POST("/generate", h.Generate)
	r.GET("/status/:job_id", h.Status)
	r.POST("/token", h.Token)
	r.GET("/health", h.Health)
	return r
}

func sampleDescriptor() *domain.JobDescriptor {
	return &domain.JobDescriptor{
		JobID:                      "job-1",
		InferenceID:                "inf-1",
		OutputLocation:             "s3://artifacts/outputs/x",
		FailureLocation:            "s3://artifacts/failures/x",
		EstimatedCompletionSeconds: 60,
		StatusURL:                  "/auth/status/job-1",
		UserID:                     "alice",
	}
}

func TestGenerate_Accepted(t *testing.T) {
	var sawUser, sawPrompt string
	h := New(&stubSubmit{fn: func(_ context.Context, userID string, req services.SubmitRequest, _ string) (*domain.JobDescriptor, bool, error) {
		sawUser, sawPrompt = userID, req.Prompt
		return sampleDescriptor(), false, nil
	}}, nil, nil, 0, 0, HealthDeps{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate",
		strings.NewReader(`{"prompt":"a red bicycle"}`))
	testRouter(h, "alice").ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if sawUser != "alice" || sawPrompt != "a red bicycle" {
		t.Fatalf("service saw (%q, %q)", sawUser, sawPrompt)
	}
	var desc domain.JobDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &desc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if desc.JobID != "job-1" || desc.StatusURL != "/auth/status/job-1" {
		t.Fatalf("descriptor = %+v", desc)
	}
}

func TestGenerate_ReplayReturns200(t *testing.T) {
	h := New(&stubSubmit{fn: func(_ context.Context, _ string, _ services.SubmitRequest, idemKey string) (*domain.JobDescriptor, bool, error) {
		if idemKey != "retry-1" {
			t.Errorf("idemKey = %q", idemKey)
		}
		return sampleDescriptor(), true, nil
	}}, nil, nil, 0, 0, HealthDeps{})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Set("idem.key", "retry-1")
		c.Next()
	})
	r.POST("/generate", h.Generate)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate",
		strings.NewReader(`{"prompt":"a red bicycle"}`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", w.Code)
	}
}

func TestGenerate_InvalidJSON(t *testing.T) {
	h := New(&stubSubmit{fn: func(context.Context, string, services.SubmitRequest, string) (*domain.JobDescriptor, bool, error) {
		t.Fatal("service called with malformed body")
		return nil, false, nil
	}}, nil, nil, 0, 0, HealthDeps{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader("{not json"))
	testRouter(h, "alice").ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGenerate_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", services.Validation("prompt must not be empty"), http.StatusBadRequest, ErrCodeBadRequest},
		{"auth", &services.Error{Kind: services.KindAuth, Message: "missing or invalid token"}, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"rate_limit", &services.Error{Kind: services.KindRateLimit, Message: "rate limit exceeded, retry later"}, http.StatusTooManyRequests, ErrCodeRateLimited},
		{"inference", services.Inference("image generation request failed", nil), http.StatusBadGateway, ErrCodeInferenceFailed},
		{"unavailable", services.Unavailable("retry later", nil), http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"unclassified", services.Unclassified(nil), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := New(&stubSubmit{fn: func(context.Context, string, services.SubmitRequest, string) (*domain.JobDescriptor, bool, error) {
				return nil, false, tc.err
			}}, nil, nil, 0, 0, HealthDeps{})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/generate",
				strings.NewReader(`{"prompt":"ok"}`))
			testRouter(h, "alice").ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			var body ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", body.Code, tc.wantCode)
			}
			if tc.wantStatus == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
				t.Fatal("429 without Retry-After")
			}
		})
	}
}
