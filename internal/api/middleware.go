package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/wayfare/internal/apperr"
	"github.com/zulandar/wayfare/internal/identity"
)

// PartyHeader carries the caller's party id when no token verifier is set.
const PartyHeader = "X-Party-ID"

// requireIdentity resolves the caller and stores it on the request context.
// With a verifier, a valid bearer token is required; otherwise the
// X-Party-ID header is trusted.
func requireIdentity(v *identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var party string
		if v != nil {
			tok, ok := identity.BearerToken(c.GetHeader("Authorization"))
			if !ok {
				abortUnauthorized(c, "missing bearer token")
				return
			}
			sub, err := v.Verify(tok)
			if err != nil {
				abortUnauthorized(c, "invalid token")
				return
			}
			party = sub
		} else {
			party = strings.TrimSpace(c.GetHeader(PartyHeader))
			if party == "" {
				abortUnauthorized(c, "missing "+PartyHeader+" header")
				return
			}
		}
		c.Request = c.Request.WithContext(identity.WithParty(c.Request.Context(), party))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "kind": "unauthorized"})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": ..., "kind": ...}.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("api: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{
		"error": apperr.UserMessage(err),
		"kind":  apperr.KindOf(err).String(),
	})
}
