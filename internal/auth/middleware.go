package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/vkube-console/internal/token"
)

const userIDKey = "userID"

// Middleware é o portão de sessão: resolve o bearer token do header
// Authorization para um userID via Token Service. Handlers abaixo dele só
// enxergam o userID resolvido, nunca o token cru.
func Middleware(tokens *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token ausente"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "formato de token inválido"})
			return
		}
		userID, err := tokens.VerifyAccess(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token inválido ou expirado"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID devolve o userID resolvido pelo Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
