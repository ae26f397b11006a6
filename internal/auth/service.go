package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Service manages research sessions. Refresh token IDs live in Redis so a
// session can be ended before its tokens expire.
type Service struct {
	jwt         *JWTManager
	redisClient redis.Cmdable
}

func NewService(jwt *JWTManager, redisClient redis.Cmdable) *Service {
	return &Service{
		jwt:         jwt,
		redisClient: redisClient,
	}
}

func refreshKey(sessionID, tokenID string) string {
	return fmt.Sprintf("refresh:%s:%s", sessionID, tokenID)
}

// StartSession creates a new session and its first token pair.
func (s *Service) StartSession(ctx context.Context) (*TokenPair, error) {
	return s.issue(ctx, uuid.New().String())
}

func (s *Service) issue(ctx context.Context, sessionID string) (*TokenPair, error) {
	pair, tokenID, err := s.jwt.GenerateTokenPair(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.redisClient.Set(ctx, refreshKey(sessionID, tokenID), "1", s.jwt.RefreshExpiry()).Err(); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}
	return pair, nil
}

// RefreshTokens rotates a refresh token. The old token is revoked.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	key := refreshKey(claims.SessionID, claims.TokenID)
	deleted, err := s.redisClient.Del(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("revoking refresh token: %w", err)
	}
	if deleted == 0 {
		return nil, fmt.Errorf("refresh token revoked")
	}

	return s.issue(ctx, claims.SessionID)
}

// EndSession revokes every refresh token of the session.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	iter := s.redisClient.Scan(ctx, 0, refreshKey(sessionID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := s.redisClient.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("revoking refresh token: %w", err)
		}
	}
	return iter.Err()
}

func (s *Service) ValidateAccessToken(token string) (*SessionClaims, error) {
	return s.jwt.ValidateAccessToken(token)
}
