package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the ops API token shape. Every token is scoped to one business;
// webhook traffic from the provider never carries one.
type Claims struct {
	jwt.RegisteredClaims

	UserID     string `json:"user_id"`
	BusinessID string `json:"business_id"`
	Role       string `json:"role"`
}
