package jwtutil

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	signingKey []byte
	expiration = time.Hour * 24
)

// ErrInvalidToken is returned when a token fails validation.
var ErrInvalidToken = errors.New("invalid or expired token")

// Config holds the JWT settings.
type Config struct {
	SigningKey      string
	ExpirationHours int
}

// Initialize sets the signing key and token lifetime from configuration.
func Initialize(cfg *Config) {
	signingKey = []byte(cfg.SigningKey)
	if cfg.ExpirationHours > 0 {
		expiration = time.Duration(cfg.ExpirationHours) * time.Hour
	}
}

// UserClaims represents the JWT claims for user authentication, including
// the organization context when one is active.
type UserClaims struct {
	Email       string   `json:"email"`
	UserID      string   `json:"user_id"`
	OrgID       string   `json:"org_id,omitempty"`
	OrgName     string   `json:"org_name,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates a JWT token with user information and no
// organization context.
func GenerateToken(email, userID string) (string, error) {
	return GenerateTokenWithOrganization(email, userID, "", "", "", nil)
}

// GenerateTokenWithOrganization creates a JWT token carrying the user's
// active organization, role and permission grants.
func GenerateTokenWithOrganization(email, userID, orgID, orgName, role string, permissions []string) (string, error) {
	claims := UserClaims{
		Email:       email,
		UserID:      userID,
		OrgID:       orgID,
		OrgName:     orgName,
		Role:        role,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

// ValidateToken validates and parses the JWT token
func ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return signingKey, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
