package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opentriagem/triagem/pkg/auth"
	"github.com/opentriagem/triagem/pkg/models"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Signature"

const userContextKey = "auth_user"

// requireSignature verifies the webhook HMAC over the raw body. The body is
// restored for the handler after verification. Failures are logged in the
// auth event trail.
func (s *Server) requireSignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !VerifySignature(s.cfg.Webhook.HMACSecret, body, c.GetHeader(SignatureHeader)) {
			s.recordAuthFailure(c, models.AuthEventLoginFailed, map[string]string{
				"surface": "webhook",
				"reason":  "invalid_signature",
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}

// VerifySignature checks a hex HMAC-SHA256 signature against the payload.
func VerifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// requireBearer resolves the opaque bearer token to an active user. An empty
// role admits any active user; otherwise the user's role must match.
func (s *Server) requireBearer(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		_, user, err := s.repos.Tokens.ResolveHash(c.Request.Context(), auth.HashToken(token))
		if err != nil {
			s.recordAuthFailure(c, models.AuthEventLoginFailed, map[string]string{
				"surface": "api",
				"reason":  "unknown_token",
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if user.AccountStatus != models.AccountActive {
			s.recordAuthFailure(c, models.AuthEventAuthorizationFailed, map[string]string{
				"user_id": user.UserID,
				"reason":  "account_" + string(user.AccountStatus),
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account not active"})
			return
		}
		if role != "" && user.Role != role {
			s.recordAuthFailure(c, models.AuthEventAuthorizationFailed, map[string]string{
				"user_id": user.UserID,
				"reason":  "insufficient_role",
			})
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

func (s *Server) recordAuthFailure(c *gin.Context, eventType string, details map[string]string) {
	payload, _ := json.Marshal(details)
	if err := s.repos.AuthEvents.Append(c.Request.Context(), nil, eventType, payload); err != nil {
		s.logger.Error("auth event append failed", "error", err)
	}
}
