package credential

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediconnect/internal/credential/denylist"
	"mediconnect/internal/rbac"
	dErrors "mediconnect/pkg/domain-errors"
)

var jwtService = NewService("test-signing-key", "test-issuer", "test-audience")

var principal = rbac.Principal{
	UserID:   "u1",
	Email:    "doctor@example.com",
	Name:     "Dr. Jane Smith",
	Role:     rbac.RoleDoctor,
	ClinicID: "clinic1",
}

func Test_IssueAndVerify_RoundTrip(t *testing.T) {
	token, expiresAt, err := jwtService.Issue(principal, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	got, err := jwtService.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, principal.UserID, got.UserID)
	assert.Equal(t, principal.Role, got.Role)
	assert.Equal(t, principal.ClinicID, got.ClinicID)
	assert.Equal(t, principal.Email, got.Email)
	assert.Equal(t, principal.Name, got.Name)
	assert.NotEmpty(t, got.TokenID)
	assert.WithinDuration(t, expiresAt, got.ExpiresAt, time.Second)
}

func Test_Verify_ExpiredToken(t *testing.T) {
	token, _, err := jwtService.Issue(principal, -time.Second)
	require.NoError(t, err)

	_, err = jwtService.Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrExpiredCredential)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid or missing credential"))
}

func Test_Verify_Failures(t *testing.T) {
	other := NewService("another-key", "test-issuer", "test-audience")
	foreign, _, err := other.Issue(principal, time.Hour)
	require.NoError(t, err)

	wrongAudience, _, err := NewService("test-signing-key", "test-issuer", "other").Issue(principal, time.Hour)
	require.NoError(t, err)

	unknownRole, _, err := jwtService.Issue(rbac.Principal{UserID: "u9", Role: rbac.Role("root")}, time.Hour)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: "u1",
		Role:   string(rbac.RoleCustomerSuccess),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "test-issuer",
			Audience:  []string{"test-audience"},
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingCredential},
		{"whitespace", "   ", ErrMissingCredential},
		{"garbage", "invalid-token-string", ErrInvalidCredential},
		{"wrong signing key", foreign, ErrInvalidCredential},
		{"wrong audience", wrongAudience, ErrInvalidCredential},
		{"unknown role claim", unknownRole, ErrInvalidCredential},
		{"alg none", unsigned, ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jwtService.Verify(context.Background(), tt.token)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}
}

func Test_Verify_UsesInjectedClock(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := issuedAt
	svc := NewService("k", "iss", "aud", WithClock(func() time.Time { return clock }))

	token, _, err := svc.Issue(principal, time.Hour)
	require.NoError(t, err)

	clock = issuedAt.Add(59 * time.Minute)
	_, err = svc.Verify(context.Background(), token)
	require.NoError(t, err)

	clock = issuedAt.Add(61 * time.Minute)
	_, err = svc.Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrExpiredCredential)
}

func Test_Revoke(t *testing.T) {
	svc := NewService("test-signing-key", "test-issuer", "test-audience", WithDenylist(denylist.NewMemory()))
	ctx := context.Background()

	token, _, err := svc.Issue(principal, time.Hour)
	require.NoError(t, err)

	p, err := svc.Verify(ctx, token)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, p))

	_, err = svc.Verify(ctx, token)
	require.ErrorIs(t, err, ErrRevokedCredential)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	other, _, err := svc.Issue(principal, time.Hour)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, other)
	require.NoError(t, err, "revocation is per token, not per user")
}

func Test_Revoke_NoDenylistIsNoop(t *testing.T) {
	require.NoError(t, jwtService.Revoke(context.Background(), &principal))
}

func Test_ExtractBearer(t *testing.T) {
	token, err := ExtractBearer("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	for _, header := range []string{"", "Bearer ", "Bearer    ", "Basic abc", "abc.def.ghi"} {
		_, err := ExtractBearer(header)
		require.ErrorIs(t, err, ErrMissingCredential, "header %q", header)
	}
}
