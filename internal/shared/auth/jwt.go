package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// DefaultTTL is the lifetime of tokens issued by Generate.
const DefaultTTL = 24 * time.Hour

// TokenVerifier resolves a bearer token to the id of the user it was issued to.
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

type JWTClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
}

// JWT issues and validates HS256 tokens.
type JWT struct {
	secret []byte
	now    func() time.Time
}

// Ensure JWT implements TokenVerifier
var _ TokenVerifier = (*JWT)(nil)

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret), now: time.Now}
}

func (j *JWT) Generate(userID, email string) (string, error) {
	return j.GenerateWithTTL(userID, email, DefaultTTL)
}

func (j *JWT) GenerateWithTTL(userID, email string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	header := map[string]string{
		"alg": "HS256",
		"typ": "JWT",
	}

	now := j.now()
	claims := JWTClaims{
		UserID: userID,
		Email:  email,
		Iat:    now.Unix(),
		Exp:    now.Add(ttl).Unix(),
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	message := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(claimsJSON)
	return message + "." + j.sign(message), nil
}

func (j *JWT) Validate(token string) (*JWTClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: malformed", ErrInvalidToken)
	}

	message := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(j.sign(message))) {
		return nil, fmt.Errorf("%w: bad signature", ErrInvalidToken)
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode claims: %v", ErrInvalidToken, err)
	}

	var claims JWTClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal claims: %v", ErrInvalidToken, err)
	}

	if j.now().Unix() > claims.Exp {
		return nil, ErrTokenExpired
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	return &claims, nil
}

// Verify implements TokenVerifier.
func (j *JWT) Verify(token string) (string, error) {
	claims, err := j.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func (j *JWT) sign(message string) string {
	h := hmac.New(sha256.New, j.secret)
	h.Write([]byte(message))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
