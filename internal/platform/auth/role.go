package auth

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleLibrarian Role = "LIBRARIAN"
	RoleStudent   Role = "STUDENT"
)

// ParseRole は大文字小文字を区別しない
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleStudent:
		return true
	}
	return false
}

// CanManageBooks: ADMIN, LIBRARIAN
func CanManageBooks(r Role) bool { return r == RoleAdmin || r == RoleLibrarian }

// CanManageUsers: ADMIN only
func CanManageUsers(r Role) bool { return r == RoleAdmin }

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) CanManageBooks() bool { return CanManageBooks(p.Role) }
func (p Principal) CanManageUsers() bool { return CanManageUsers(p.Role) }

// CanAct reports whether p may act on a record owned by userID.
func (p Principal) CanAct(userID string) bool {
	return p.UserID == userID || p.CanManageBooks()
}

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"
)

// CurrentPrincipal は RequireAuth が詰めた値を取り出す
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	uid := c.GetString(CtxUserIDKey)
	v, ok := c.Get(CtxRoleKey)
	if uid == "" || !ok {
		return Principal{}, false
	}
	role, ok := v.(Role)
	if !ok {
		return Principal{}, false
	}
	return Principal{UserID: uid, Role: role}, true
}
