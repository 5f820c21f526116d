package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleManager  UserRole = "MANAGER"
	RoleEmployee UserRole = "EMPLOYEE"
)

// JWTClaims represents the JWT payload for access tokens issued by the identity provider.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	SectorID string   `json:"sector_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
