package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

// AuthHandler mints short-lived operator JWTs (spec.md §4.9's JWT path).
// It is only registered when a signing key is configured; the static
// bearer token path needs no minting endpoint.
type AuthHandler struct {
	signingKey string
	authToken  string
	ttl        time.Duration
}

func NewAuthHandler(signingKey, authToken string, ttl time.Duration) *AuthHandler {
	return &AuthHandler{signingKey: signingKey, authToken: authToken, ttl: ttl}
}

type tokenRequest struct {
	AuthToken string `json:"auth_token"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// IssueToken serves POST /operator/token. The caller proves it already
// holds the configured static operator secret, then exchanges it for a
// short-lived JWT. This does not weaken the static-token path; it
// coexists with it.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid JSON body")
		return
	}
	if h.authToken == "" || subtle.ConstantTimeCompare([]byte(req.AuthToken), []byte(h.authToken)) != 1 {
		WriteErrorWithCode(w, http.StatusUnauthorized, ErrUnauthorized, "invalid auth_token")
		return
	}

	expiresAt := time.Now().Add(h.ttl)
	claims := jwt.MapClaims{
		"iss": "chetan-server",
		"exp": expiresAt.Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.signingKey))
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to sign token")
		return
	}

	WriteJSON(w, http.StatusOK, tokenResponse{Token: signed, ExpiresAt: expiresAt.Unix()})
}

func (h *AuthHandler) Routes(r chi.Router) {
	r.Post("/operator/token", h.IssueToken)
}
