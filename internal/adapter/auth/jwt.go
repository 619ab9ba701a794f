package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/neomorfeo/orgstate/internal/domain"
)

// Compile-time check: JWT implements domain.Authenticator.
var _ domain.Authenticator = (*JWT)(nil)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the custom claims carried by an orgstate access token.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// JWT issues and verifies HS256 bearer tokens.
type JWT struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// New creates a JWT authenticator.
func New(secret, issuer string, ttl time.Duration) *JWT {
	return &JWT{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Issue signs a token for the actor.
func (j *JWT) Issue(actor domain.Actor) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Subject:   actor.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Name: actor.Name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Parse verifies a token and returns the actor it names.
func (j *JWT) Parse(tokenString string) (domain.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.secret, nil
	}, jwt.WithIssuer(j.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Actor{}, ErrExpiredToken
		}
		return domain.Actor{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Actor{}, ErrInvalidToken
	}

	return domain.Actor{ID: claims.Subject, Name: claims.Name}, nil
}

// Actor resolves the bearer token stored in ctx by Middleware.
func (j *JWT) Actor(ctx context.Context) (domain.Actor, error) {
	token, ok := ctx.Value(tokenKey{}).(string)
	if !ok || token == "" {
		return domain.Actor{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, ErrMissingToken)
	}

	actor, err := j.Parse(token)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	return actor, nil
}

type tokenKey struct{}

// WithToken stores a raw bearer token in ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// Middleware copies the Authorization bearer token into the request
// context. Requests without one pass through and are rejected later by the
// pipeline, so public routes like the OpenAPI docs keep working.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			r = r.WithContext(WithToken(r.Context(), strings.TrimSpace(token)))
		}
		next.ServeHTTP(w, r)
	})
}
