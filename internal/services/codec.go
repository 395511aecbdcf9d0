package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"attendance-backend/internal/models"
)

// TokenFormat records how a submitted code was decoded.
type TokenFormat int

const (
	TokenFormatUnknown TokenFormat = iota
	TokenFormatSigned
	TokenFormatPlainFallback
)

func (f TokenFormat) String() string {
	switch f {
	case TokenFormatSigned:
		return "signed"
	case TokenFormatPlainFallback:
		return "plain"
	default:
		return "unknown"
	}
}

var ErrUndecodableToken = errors.New("token is neither a signed code nor a plain payload")

// CodeCodec signs code payloads and decodes submitted ones.
type CodeCodec struct {
	secret     []byte
	allowPlain bool
}

func NewCodeCodec(secret string, allowPlain bool) *CodeCodec {
	return &CodeCodec{secret: []byte(secret), allowPlain: allowPlain}
}

type codeClaims struct {
	models.CodePayload
	jwt.RegisteredClaims
}

func (c *CodeCodec) Sign(payload models.CodePayload, ttl time.Duration) (string, error) {
	claims := codeClaims{
		CodePayload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.UnixMilli(payload.IssuedAt).Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign code: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature while ignoring the token's own expiry: a
// capture may be reported long after issuance. Failing that, the raw value
// is read as a plain JSON payload when the fallback is enabled. A displayed
// wrapper of the form {"t":"<token>"} is unwrapped first.
func (c *CodeCodec) Decode(raw string) (models.CodePayload, TokenFormat, error) {
	raw = strings.TrimSpace(raw)

	if payload, err := c.verify(raw); err == nil {
		return payload, TokenFormatSigned, nil
	}

	var wrapper struct {
		T string `json:"t"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err == nil && wrapper.T != "" {
		if payload, err := c.verify(wrapper.T); err == nil {
			return payload, TokenFormatSigned, nil
		}
	}

	if !c.allowPlain {
		return models.CodePayload{}, TokenFormatUnknown, ErrUndecodableToken
	}

	var plain models.CodePayload
	if err := json.Unmarshal([]byte(raw), &plain); err != nil || plain.SessionID == "" || plain.Secret == "" {
		return models.CodePayload{}, TokenFormatUnknown, ErrUndecodableToken
	}
	return plain, TokenFormatPlainFallback, nil
}

func (c *CodeCodec) verify(raw string) (models.CodePayload, error) {
	claims := &codeClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return models.CodePayload{}, err
	}
	if claims.SessionID == "" || claims.Secret == "" {
		return models.CodePayload{}, ErrUndecodableToken
	}
	return claims.CodePayload, nil
}
