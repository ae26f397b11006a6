package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer          = "finbrain"
	accessAudience  = "finbrain-access"
	refreshAudience = "finbrain-refresh"
)

type TokenPair struct {
	SessionID    string `json:"session_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SessionClaims are carried by access tokens.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	SessionID string `json:"sid"`
	TokenID   string `json:"tid"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies session tokens with HS256. Access and
// refresh tokens share the secret and are told apart by audience.
type JWTManager struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewJWTManager(secret string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// GenerateTokenPair issues tokens for sessionID and returns the refresh
// token's ID.
func (m *JWTManager) GenerateTokenPair(sessionID string) (*TokenPair, string, error) {
	now := time.Now()

	accessClaims := SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{accessAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	accessStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(m.secret)
	if err != nil {
		return nil, "", fmt.Errorf("signing access token: %w", err)
	}

	tokenID := uuid.New().String()
	refreshClaims := RefreshClaims{
		SessionID: sessionID,
		TokenID:   tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{refreshAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	refreshStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(m.secret)
	if err != nil {
		return nil, "", fmt.Errorf("signing refresh token: %w", err)
	}

	return &TokenPair{
		SessionID:    sessionID,
		AccessToken:  accessStr,
		RefreshToken: refreshStr,
		ExpiresIn:    int64(m.accessExpiry.Seconds()),
	}, tokenID, nil
}

func (m *JWTManager) ValidateAccessToken(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := m.parse(tokenStr, claims, accessAudience); err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("access token has no session")
	}
	return claims, nil
}

func (m *JWTManager) ValidateRefreshToken(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, refreshAudience); err != nil {
		return nil, fmt.Errorf("parsing refresh token: %w", err)
	}
	if claims.SessionID == "" || claims.TokenID == "" {
		return nil, fmt.Errorf("invalid refresh token claims")
	}
	return claims, nil
}

func (m *JWTManager) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithAudience(audience), jwt.WithIssuer(issuer))
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("token is not valid")
	}
	return nil
}

func (m *JWTManager) RefreshExpiry() time.Duration {
	return m.refreshExpiry
}
