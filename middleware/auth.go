package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/p2einferno/inferno-checkin/utils"
)

const (
	// ContextSubjectKey stores the identity-provider subject (Privy DID) in the Gin context.
	ContextSubjectKey = "privy_user_id"
	// ContextSessionKey stores the token session id when present.
	ContextSessionKey = "session_id"
)

// AuthRequired ensures the request carries a valid bearer token.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			ctx.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Error(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
			ctx.Abort()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40103, "empty bearer token")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		if utils.IsSessionRevoked(claims.SessionID) {
			utils.Error(ctx, http.StatusUnauthorized, 40104, "session revoked")
			ctx.Abort()
			return
		}

		ctx.Set(ContextSubjectKey, claims.Subject)
		ctx.Set(ContextSessionKey, claims.SessionID)
		ctx.Next()
	}
}
