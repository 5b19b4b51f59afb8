package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// Token purposes in use. A token signed for one purpose is never valid
// for another, even if the payloads have the same shape.
const (
	PurposeApproveRoom  = "approve-room"
	PurposeDenyRoom     = "deny-room"
	PurposeEmailConfirm = "email-confirm"
)

// Maximum token ages per purpose, enforced at verification time.
const (
	ApproveRoomMaxAge  = 24 * time.Hour
	DenyRoomMaxAge     = 24 * time.Hour
	EmailConfirmMaxAge = time.Hour
)

var (
	ErrExpired      = errors.New("token expired")
	ErrBadSignature = errors.New("invalid token")
)

const (
	purposeClaim  = "purpose"
	issuedAtClaim = "iat"
)

// Service issues and verifies self-contained capability tokens. Tokens
// are never persisted; everything needed to act on one travels inside
// the signed payload.
type Service struct {
	signingKey []byte
	now        func() time.Time
}

func NewService(signingKey []byte) *Service {
	return &Service{
		signingKey: signingKey,
		now:        time.Now,
	}
}

// Sign produces a signed token carrying the payload fields along with
// the purpose and issue time.
func (s *Service) Sign(payload map[string]string, purpose string) (string, error) {
	claims := jwt.MapClaims{
		purposeClaim:  purpose,
		issuedAtClaim: s.now().Unix(),
	}
	for k, v := range payload {
		if k == purposeClaim || k == issuedAtClaim {
			return "", fmt.Errorf("payload field %q collides with a reserved claim", k)
		}
		claims[k] = v
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.signingKey)
}

// Verify checks the signature, purpose and age of a token and returns
// its payload fields. A corrupted or mispurposed token yields
// ErrBadSignature; a valid token older than maxAge yields ErrExpired.
func (s *Service) Verify(tokenString, purpose string, maxAge time.Duration) (map[string]string, error) {
	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrBadSignature
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrBadSignature
	}

	if p, _ := claims[purposeClaim].(string); p != purpose {
		return nil, ErrBadSignature
	}

	iat, ok := claims[issuedAtClaim].(float64)
	if !ok {
		return nil, ErrBadSignature
	}
	if s.now().Sub(time.Unix(int64(iat), 0)) > maxAge {
		return nil, ErrExpired
	}

	payload := make(map[string]string)
	for k, v := range claims {
		if k == purposeClaim || k == issuedAtClaim {
			continue
		}
		if str, ok := v.(string); ok {
			payload[k] = str
		}
	}

	return payload, nil
}
