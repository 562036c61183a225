package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/auth"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/breaker"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/config"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/domain"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/inference"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/repo"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/storage"
)

// memStore is an in-memory Store for end-to-end routing tests.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	mtimes  map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, mtimes: map[string]time.Time{}}
}

func (m *memStore) put(key string, body []byte, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
	m.mtimes[key] = at
}

func (m *memStore) Put(_ context.Context, key string, body []byte, _ string) error {
	m.put(key, body, time.Now().UTC())
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %q", key)
	}
	return b, nil
}

func (m *memStore) List(_ context.Context, prefix string, max int) ([]storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Object
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.Object{Key: k, LastModified: m.mtimes[k]})
			if len(out) >= max {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

func (m *memStore) Location(key string) string { return "s3://artifacts/" + key }

// memInvoker accepts every submission.
type memInvoker struct{ calls int }

func (mi *memInvoker) InvokeAsync(_ context.Context, req inference.Request) (*inference.Response, error) {
	mi.calls++
	return &inference.Response{
		InferenceID:     "inf-" + uuid.NewString()[:8],
		OutputLocation:  "s3://artifacts/outputs/pending",
		FailureLocation: "s3://artifacts/failures/pending",
	}, nil
}

type testEnv struct {
	router  *gin.Engine
	store   *memStore
	invoker *memInvoker
	cfg     config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Config{
		APIBasePath:    "/auth",
		MaxPromptRunes: 1000,
		IdempotencyTTL: 24 * time.Hour,
		Auth: config.AuthConfig{
			Secret:        "test-secret",
			Issuer:        "imagegen-gateway",
			DefaultTTL:    24 * time.Hour,
			MaxTTL:        7 * 24 * time.Hour,
			TokenEndpoint: true,
		},
		Rate: config.RateConfig{
			UserLimit:  100,
			UserWindow: time.Minute,
			FailOpen:   true,
			EdgeRPS:    1000,
			EdgeBurst:  1000,
		},
		Storage: config.StorageConfig{
			InputPrefix:   "inputs/",
			OutputPrefix:  "outputs/",
			FailurePrefix: "failures/",
			PresignTTL:    time.Hour,
			ListPageSize:  1000,
		},
		Inference: config.InferenceConfig{
			EndpointName:     "imagegen-prod",
			EstimatedSeconds: 60,
			MaxErrorChars:    500,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		store:   newMemStore(),
		invoker: &memInvoker{},
		cfg:     cfg,
	}
	env.router = gin.New()
	RegisterRoutes(env.router, Deps{
		DB:       db,
		Store:    env.store,
		Invoker:  env.invoker,
		Breaker:  breaker.New("inference-"+uuid.NewString()[:8], 5, time.Minute),
		Redis:    rdb,
		Verifier: auth.New(cfg.Auth.Secret, cfg.Auth.Issuer),
		Cfg:      cfg,
	})
	return env
}

func (e *testEnv) do(method, target, token, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/auth/token", "", fmt.Sprintf(`{"user_id":%q}`, userID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("token: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("token body: %v", err)
	}
	return resp.Token
}

func TestRouter_EndToEndLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "alice")

	// Submit.
	w := env.do(http.MethodPost, "/auth/generate", token, `{"prompt":"a red bicycle"}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("generate: %d %s", w.Code, w.Body.String())
	}
	var desc domain.JobDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &desc); err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	if desc.JobID == "" || desc.StatusURL != "/auth/status/"+desc.JobID {
		t.Fatalf("descriptor = %+v", desc)
	}
	if env.invoker.calls != 1 {
		t.Fatalf("invoker calls = %d", env.invoker.calls)
	}

	// Poll: no artifact yet.
	w = env.do(http.MethodGet, desc.StatusURL, token, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	var st domain.JobStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if st.Status != domain.StatusProcessing {
		t.Fatalf("status = %q, want processing", st.Status)
	}
	if st.CreatedAt == nil {
		t.Fatal("created_at not enriched from ledger")
	}

	// Backend finishes: artifact appears under the output prefix.
	done := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	env.store.put("outputs/"+desc.JobID+".png.out", []byte("binary"), done)

	w = env.do(http.MethodGet, desc.StatusURL, token, "", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if st.Status != domain.StatusCompleted || st.OutputURL == "" {
		t.Fatalf("status = %+v", st)
	}
	if st.CompletedAt == nil || !st.CompletedAt.Equal(done) {
		t.Fatalf("completed_at = %v", st.CompletedAt)
	}
}

func TestRouter_FailedJob(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "alice")

	w := env.do(http.MethodPost, "/auth/generate", token, `{"prompt":"ok"}`, nil)
	var desc domain.JobDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &desc); err != nil {
		t.Fatalf("descriptor: %v", err)
	}

	env.store.put("failures/"+desc.JobID+".json", []byte("CUDA out of memory"), time.Now().UTC())

	w = env.do(http.MethodGet, desc.StatusURL, token, "", nil)
	var st domain.JobStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if st.Status != domain.StatusFailed || st.ErrorMessage != "CUDA out of memory" {
		t.Fatalf("status = %+v", st)
	}
}

func TestRouter_AuthRequired(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, tc := range []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage token", "not-a-jwt"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/auth/generate", tc.token, `{"prompt":"ok"}`, nil)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
		})
	}
	if env.invoker.calls != 0 {
		t.Fatalf("unauthenticated request reached the backend")
	}
}

func TestRouter_ValidationRejectedBeforeSideEffects(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "alice")

	w := env.do(http.MethodPost, "/auth/generate", token, `{"prompt":""}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if env.invoker.calls != 0 {
		t.Fatal("empty prompt reached the backend")
	}
	if len(env.store.objects) != 0 {
		t.Fatal("empty prompt wrote to storage")
	}
}

func TestRouter_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "alice")
	hdr := map[string]string{"Idempotency-Key": "retry-1"}

	w := env.do(http.MethodPost, "/auth/generate", token, `{"prompt":"ok"}`, hdr)
	if w.Code != http.StatusAccepted {
		t.Fatalf("first: %d", w.Code)
	}
	var first domain.JobDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}

	w = env.do(http.MethodPost, "/auth/generate", token, `{"prompt":"ok"}`, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("replay: %d, want 200", w.Code)
	}
	var second domain.JobDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if second.JobID != first.JobID {
		t.Fatalf("replay returned new job %q, want %q", second.JobID, first.JobID)
	}
	if env.invoker.calls != 1 {
		t.Fatalf("invoker calls = %d, want 1", env.invoker.calls)
	}
}

func TestRouter_PerUserQuota(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Rate.UserLimit = 2
	})
	alice := env.token(t, "alice")
	bob := env.token(t, "bob")

	for i := 0; i < 2; i++ {
		if w := env.do(http.MethodPost, "/auth/generate", alice, `{"prompt":"ok"}`, nil); w.Code != http.StatusAccepted {
			t.Fatalf("request %d: %d", i+1, w.Code)
		}
	}
	w := env.do(http.MethodPost, "/auth/generate", alice, `{"prompt":"ok"}`, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over quota: %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}

	// Another user is unaffected.
	if w := env.do(http.MethodPost, "/auth/generate", bob, `{"prompt":"ok"}`, nil); w.Code != http.StatusAccepted {
		t.Fatalf("bob: %d", w.Code)
	}
}

func TestRouter_TokenEndpointGate(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Auth.TokenEndpoint = false
	})
	w := env.do(http.MethodPost, "/auth/token", "", `{"user_id":"alice"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("disabled token endpoint: %d, want 404", w.Code)
	}
}

func TestRouter_Fallbacks(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/nope", "", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown route: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not_found") {
		t.Fatalf("body = %s", w.Body.String())
	}

	w = env.do(http.MethodDelete, "/ping", "", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("bad method: %d", w.Code)
	}

	w = env.do(http.MethodGet, "/ping", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ping: %d", w.Code)
	}
}

func TestRouter_HealthAuthenticated(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.do(http.MethodGet, "/auth/health", "", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated health: %d, want 401", w.Code)
	}

	token := env.token(t, "alice")
	w := env.do(http.MethodGet, "/auth/health", token, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}
