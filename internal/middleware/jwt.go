package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	appErrors "github.com/tutorbase/schedule-api/pkg/errors"
	"github.com/tutorbase/schedule-api/pkg/response"
)

// ContextUserKey is the gin context key storing the verified subject claims.
const ContextUserKey = "currentUser"

// Claims carries the identity minted by the external auth service.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWT protects routes by requiring a valid access token. Tokens are issued by
// the marketplace auth service; this API only verifies them.
func JWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// CurrentClaims returns the claims stored by JWT, if any.
func CurrentClaims(c *gin.Context) *Claims {
	if v, exists := c.Get(ContextUserKey); exists {
		if claims, ok := v.(*Claims); ok {
			return claims
		}
	}
	return nil
}
