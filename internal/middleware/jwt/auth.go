package jwt

import (
	"strings"

	"ContextIndex/pkg/back"
	"ContextIndex/pkg/util/myjwt"
	"ContextIndex/pkg/xerr"

	"github.com/gin-gonic/gin"
)

// Auth 校验外层服务签发的 Bearer token，通过后在上下文写入 uuid 与 username
func Auth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			back.Error(c, xerr.Unauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := myjwt.ParseToken(key, tokenString)
		if err != nil {
			back.Error(c, xerr.Unauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set("uuid", claims.Uuid)
		c.Set("username", claims.Username)
		c.Next()
	}
}
