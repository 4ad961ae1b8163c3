package auth

import "github.com/golang-jwt/jwt/v5"

// Роли операторов. Совпадают со значениями users.role.
const (
	RoleAdmin         = "ADMIN"
	RoleSubcontractor = "SUBCONTRACTOR"
)

// Claims: единственная поддерживаемая форма access-токена.
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"user_id"`
	Role   string `json:"role"`
}
