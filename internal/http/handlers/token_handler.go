// Token issuance endpoint.
//
//   - POST /token
//
// This is the bootstrap surface for clients that have no token yet, so it
// sits outside the authenticated group. Deployments fronted by a real
// identity provider disable it via AUTH_TOKEN_ENDPOINT_ENABLED and mint
// tokens elsewhere with the shared secret.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// TokenRequest is the JSON payload for minting an identity token.
type TokenRequest struct {
	// UserID is the identity the token will assert (required).
	UserID string `json:"user_id" example:"alice"`
	// TTLHours optionally overrides the default lifetime; capped by the
	// configured maximum.
	TTLHours int `json:"ttl_hours,omitempty" example:"24"`
}

// TokenResponse carries the minted token and its expiry.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

// Token godoc
// @ID          issueToken
// @Summary     Mint an identity token
// @Description Issues a signed bearer token for the given user id, valid for the requested lifetime (bounded by the server maximum).
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.TokenRequest  true  "Token payload"
//
// @Success     200  {object}  handlers.TokenResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /token [post]
func (h *Handlers) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id must not be empty")
		return
	}
	if req.TTLHours < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ttl_hours must not be negative")
		return
	}

	ttl := h.defaultTTL
	if req.TTLHours > 0 {
		ttl = time.Duration(req.TTLHours) * time.Hour
		if ttl > h.maxTTL {
			ttl = h.maxTTL
		}
	}

	token, exp, err := h.issuer.Issue(userID, ttl)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	ok(c, http.StatusOK, TokenResponse{Token: token, ExpiresAt: exp, UserID: userID})
}
