// Package credential issues and verifies the signed, time-bounded bearer
// tokens that carry a principal's claims. Verification is stateless apart
// from an optional revocation denylist.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mediconnect/internal/rbac"
)

var tracer = otel.Tracer("mediconnect/credential")

// Claims are the JWT claims of an access token.
type Claims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	ClinicID string `json:"clinicId,omitempty"`
	jwt.RegisteredClaims
}

// Denylist reports tokens revoked before their natural expiry.
type Denylist interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

// Service signs and validates HS256 access tokens against one shared secret.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	denylist   Denylist
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithDenylist enables revocation checks during Verify.
func WithDenylist(d Denylist) Option {
	return func(s *Service) {
		s.denylist = d
	}
}

// WithClock overrides the time source used for issuing and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(signingKey, issuer, audience string, opts ...Option) *Service {
	s := &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for p valid for ttl. A negative ttl yields an already
// expired token.
func (s *Service) Issue(p rbac.Principal, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   p.UserID,
		Email:    p.Email,
		Name:     p.Name,
		Role:     string(p.Role),
		ClinicID: p.ClinicID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify validates the token and returns the principal it carries. No
// directory lookup is performed: the token is the sole source of the claims.
func (s *Service) Verify(ctx context.Context, tokenString string) (*rbac.Principal, error) {
	ctx, span := tracer.Start(ctx, "credential.Verify")
	defer span.End()

	p, err := s.verify(ctx, tokenString)
	if err != nil {
		span.SetStatus(codes.Error, "verification failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("role", string(p.Role)))
	return p, nil
}

func (s *Service) verify(ctx context.Context, tokenString string) (*rbac.Principal, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, reject(ErrMissingCredential)
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		// jwt reports expiry only after the signature checked out, so an
		// expired token here is otherwise genuine.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, reject(ErrExpiredCredential)
		}
		return nil, reject(fmt.Errorf("%w: %v", ErrInvalidCredential, err))
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, reject(ErrInvalidCredential)
	}

	role, err := rbac.ParseRole(claims.Role)
	if err != nil || claims.UserID == "" {
		return nil, reject(ErrInvalidCredential)
	}

	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check token revocation: %w", err)
		}
		if revoked {
			return nil, reject(ErrRevokedCredential)
		}
	}

	p := &rbac.Principal{
		UserID:   claims.UserID,
		Email:    claims.Email,
		Name:     claims.Name,
		Role:     role,
		ClinicID: claims.ClinicID,
		TokenID:  claims.ID,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Revoke denylists p's token until its natural expiry. It is a no-op when no
// denylist is configured or the token has already expired.
func (s *Service) Revoke(ctx context.Context, p *rbac.Principal) error {
	if s.denylist == nil || p == nil || p.TokenID == "" {
		return nil
	}
	ttl := p.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.denylist.Revoke(ctx, p.TokenID, ttl)
}

// ExtractBearer pulls the token out of an Authorization header value of the
// form "Bearer <token>".
func ExtractBearer(header string) (string, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", reject(ErrMissingCredential)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", reject(ErrMissingCredential)
	}
	return token, nil
}
