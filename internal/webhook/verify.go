package webhook

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ForwardIssuer is the issuer claim of tokens minted for the forwarding plugin.
const ForwardIssuer = "risa-forwarder"

// SignForwardToken mints an HS256 token the companion plugin sends as
// "Authorization: Bearer <token>" on /revisar.
func SignForwardToken(secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("forward secret is empty")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   ForwardIssuer,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign forward token: %w", err)
	}
	return signed, nil
}

// ValidateAuthorizationHeader extracts the bearer token.
func ValidateAuthorizationHeader(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: expected 'Bearer <token>'", ErrInvalidToken)
	}
	return strings.TrimSpace(token), nil
}

// VerifyForwardToken checks the signature, issuer and expiry of a forward token.
func VerifyForwardToken(tokenString, secret string) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ForwardIssuer),
	)
	claims := jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
