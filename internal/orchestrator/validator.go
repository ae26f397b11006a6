package orchestrator

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/finbrain/finbrain/internal/auth"
	inats "github.com/finbrain/finbrain/internal/nats"
)

// ErrRejected marks queries that can never be processed, so they are
// answered with an error instead of being redelivered.
var ErrRejected = errors.New("query rejected")

// TokenValidator resolves a session access token.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.SessionClaims, error)
}

// Validator checks inbound queries and resolves the session they run in.
type Validator struct {
	tokens   TokenValidator
	validate *validator.Validate
}

// NewValidator creates a new Validator.
func NewValidator(tokens TokenValidator) *Validator {
	return &Validator{
		tokens:   tokens,
		validate: validator.New(),
	}
}

// Validate checks the message fields and its session token and returns the
// session id.
func (v *Validator) Validate(msg *inats.QueryMessage) (string, error) {
	if err := v.validate.Struct(msg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}

	claims, err := v.tokens.ValidateAccessToken(msg.SessionToken)
	if err != nil {
		return "", fmt.Errorf("%w: invalid session token", ErrRejected)
	}
	if claims.SessionID == "" {
		return "", fmt.Errorf("%w: token has no session", ErrRejected)
	}
	return claims.SessionID, nil
}
