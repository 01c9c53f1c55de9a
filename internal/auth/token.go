package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// トークンの用途。audienceに入れて用途外の流用を防ぐ。
const (
	AudienceIDToken     = "id"
	AudienceSession     = "session"
	AudienceVerifyEmail = "verify-email"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims は署名済みトークンのクレーム。
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner はHS256でトークンを署名・検証する。
type TokenSigner struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenSigner はTokenSignerを生成する。
func NewTokenSigner(secret, issuer string) *TokenSigner {
	return &TokenSigner{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// TokenSpec は発行するトークンの内容。
type TokenSpec struct {
	Audience string
	Subject  string
	Email    string
	ID       string // jti
	IssuedAt time.Time
	TTL      time.Duration
}

// Sign はトークンを署名して返す。
func (s *TokenSigner) Sign(spec TokenSpec) (string, error) {
	if spec.Subject == "" || spec.Audience == "" || spec.TTL <= 0 {
		return "", ErrInvalidToken
	}
	issuedAt := spec.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = s.now()
	}

	claims := &Claims{
		Email: spec.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   spec.Subject,
			Audience:  jwt.ClaimStrings{spec.Audience},
			ID:        spec.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(spec.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify は署名・発行者・用途・有効期限を検証してクレームを返す。
// 有効期限切れはErrExpiredToken、それ以外の不備はErrInvalidTokenになる。
func (s *TokenSigner) Verify(tokenString, audience string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
