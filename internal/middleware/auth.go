package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"paygate/internal/identity"
)

// studentIDKey is the gin context key holding the resolved caller id.
const studentIDKey = "studentID"

// AuthMiddleware resolves the caller's student id from the bearer token and
// stores it in the request context. Requests without a resolvable identity
// are rejected.
func AuthMiddleware(resolver identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		studentID, err := resolver.ResolveStudentID(c.Request.Context(), token)
		if err != nil {
			log.Printf("auth: resolving caller identity: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "caller identity could not be resolved"})
			return
		}

		c.Set(studentIDKey, studentID)
		c.Next()
	}
}

// StudentIDFrom returns the resolved student id stored by AuthMiddleware.
func StudentIDFrom(c *gin.Context) (int64, bool) {
	value, ok := c.Get(studentIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
