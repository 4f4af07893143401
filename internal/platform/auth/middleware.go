package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"LIBRIS-backend/internal/platform/apierr"
)

// RequireAuth: Authorization: Bearer <token> を検証して context に sub/role を詰める
func RequireAuth(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeUnauthenticated, "missing Authorization header")
			return
		}

		scheme, tokenStr, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeUnauthenticated, "invalid Authorization header")
			return
		}

		tokenStr = strings.TrimSpace(tokenStr)
		if tokenStr == "" {
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeUnauthenticated, "empty token")
			return
		}

		p, err := tokens.Verify(tokenStr)
		if err != nil {
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeUnauthenticated, "invalid token")
			return
		}

		c.Set(CtxUserIDKey, p.UserID)
		c.Set(CtxRoleKey, p.Role)
		c.Next()
	}
}

// RequireRole: 例) admin のみ許可したい時に追加
func RequireRole(roles ...Role) gin.HandlerFunc {
	roleSet := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}
	return requireRole(func(r Role) bool {
		_, ok := roleSet[r]
		return ok
	})
}

// RequireBookManager allows ADMIN and LIBRARIAN.
func RequireBookManager() gin.HandlerFunc { return requireRole(CanManageBooks) }

// RequireUserManager allows ADMIN.
func RequireUserManager() gin.HandlerFunc { return requireRole(CanManageUsers) }

func requireRole(allowed func(Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			apierr.Abort(c, http.StatusForbidden, apierr.CodeForbidden, "missing role")
			return
		}
		if !allowed(p.Role) {
			apierr.Abort(c, http.StatusForbidden, apierr.CodeForbidden, "forbidden")
			return
		}
		c.Next()
	}
}
