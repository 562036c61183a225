package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedact_MasksIdentifiers(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"user=alice@example.com", "user=[REDACTED:email]"},
		{"job=141add05-4415-4938-b5a1-17e0d3171aff", "job=[REDACTED:id]"},
		{"plain=1", "plain=1"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := redact(tc.in); got != tc.want {
			t.Errorf("redact(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRedactingLogger_AttachesRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}))

	var attached bool
	r.GET("/x", func(c *gin.Context) {
		_, attached = c.Get(loggerKey)
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	if !attached {
		t.Fatal("request-scoped logger not attached")
	}
}

func TestRedactingLogger_ServesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/x?token=secret@mail.com", nil)
	req.Header.Set("Authorization", "Bearer very-secret")
	req.Header.Set("X-Api-Key", "k-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("response = %d %q", w.Code, w.Body.String())
	}
}

func TestTruncateBytes(t *testing.T) {
	if got := truncateBytes("abcdef", 3); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncateBytes("abc", 10); got != "abc" {
		t.Fatalf("short string changed: %q", got)
	}
	if got := truncateBytes(strings.Repeat("x", 10), 0); len(got) != 10 {
		t.Fatalf("max=0 should disable truncation")
	}
}
