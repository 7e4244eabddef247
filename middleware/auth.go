package middleware

import (
	"github.com/gin-gonic/gin"

	"kinship/identity"
	"kinship/utils"
)

const userIDKey = "user_id"

// AuthMiddleware rejects requests without a valid bearer token before any
// handler runs and stores the caller's id on the context.
func AuthMiddleware(gateway identity.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		token, ok := identity.BearerToken(authHeader)
		if !ok {
			utils.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		userID, err := gateway.Verify(token)
		if err != nil {
			utils.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
