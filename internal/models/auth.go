package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating an account.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued tokens and account info.
type LoginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	Account      AccountInfo `json:"account"`
	IssuedAt     time.Time   `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// AccountInfo describes the authenticated account in responses.
type AccountInfo struct {
	ID            string   `json:"id"`
	WalletAddress string   `json:"wallet_address"`
	Email         string   `json:"email"`
	DisplayName   string   `json:"display_name"`
	Role          UserRole `json:"role"`
}

// JWTClaims represents the JWT payload for access tokens. The wallet
// address carried here is the verified actor identity used on ledger
// entries.
type JWTClaims struct {
	AccountID     string   `json:"account_id"`
	WalletAddress string   `json:"wallet_address"`
	Role          UserRole `json:"role"`
	Email         string   `json:"email"`
	jwt.RegisteredClaims
}
