package auth

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apierrors "github.com/pixelstream-dev/matchmaker/internal/errors"
	"github.com/pixelstream-dev/matchmaker/internal/model"
)

// ContextClaimsKey is where validated claims land in the gin context.
const ContextClaimsKey = "auth_claims"

// Required returns middleware that rejects requests without a valid
// Bearer token.
func Required(manager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, apierrors.Unauthorized("Missing Authorization header"))
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, apierrors.Unauthorized("Authorization header must be a Bearer token"))
			return
		}

		claims, err := manager.ValidateToken(parts[1])
		if err != nil {
			abortUnauthorized(c, apierrors.TokenInvalid())
			return
		}

		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, appErr *apierrors.AppError) {
	c.AbortWithStatusJSON(appErr.StatusCode, model.Fail(time.Now(), appErr.Message))
}
