package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediconnect/internal/authz"
	"mediconnect/internal/credential"
	"mediconnect/internal/rbac"
	"mediconnect/pkg/requestcontext"
	"mediconnect/pkg/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newCredentials() *credential.Service {
	return credential.NewService("test-secret", "mediconnect", "mediconnect-api")
}

func principalEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := requestcontext.Principal(r.Context())
		if p == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(p.UserID + ":" + string(p.Role)))
	})
}

func TestRequireAuth(t *testing.T) {
	creds := newCredentials()
	handler := RequireAuth(creds, discard)(principalEcho())

	token, _, err := creds.Issue(rbac.Principal{UserID: "2", Role: rbac.RoleDoctor}, time.Hour)
	require.NoError(t, err)

	t.Run("valid token reaches handler with principal", func(t *testing.T) {
		req := testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/", nil), token)
		rr := testutil.DoRequest(handler, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "2:doctor", rr.Body.String())
	})

	expired, _, err := creds.Issue(rbac.Principal{UserID: "2", Role: rbac.RoleDoctor}, -time.Minute)
	require.NoError(t, err)

	failures := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage":        "Bearer not-a-jwt",
		"expired":        "Bearer " + expired,
	}
	var bodies []string
	for name, header := range failures {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := testutil.DoRequest(handler, req)
			testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			bodies = append(bodies, rr.Body.String())
		})
	}
	for _, b := range bodies {
		assert.Equal(t, bodies[0], b, "failure reasons must be indistinguishable")
	}
}

type brokenVerifier struct{}

func (brokenVerifier) Verify(context.Context, string) (*rbac.Principal, error) {
	return nil, errors.New("denylist unreachable")
}

func TestRequireAuth_InfrastructureFailureIs500(t *testing.T) {
	handler := RequireAuth(brokenVerifier{}, discard)(principalEcho())
	req := testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/", nil), "tok")
	rr := testutil.DoRequest(handler, req)
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
	assert.NotContains(t, rr.Body.String(), "denylist")
}

func TestRequirePermission(t *testing.T) {
	engine := authz.NewEngine(nil)
	handler := RequirePermission(engine, rbac.PermViewPatientRecords)(principalEcho())

	t.Run("patient is forbidden", func(t *testing.T) {
		req := testutil.WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), testutil.PrincipalFor("1", rbac.RolePatient))
		testutil.AssertStatusAndError(t, testutil.DoRequest(handler, req), http.StatusForbidden, "forbidden")
	})

	t.Run("doctor passes", func(t *testing.T) {
		req := testutil.WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), testutil.PrincipalFor("2", rbac.RoleDoctor))
		assert.Equal(t, http.StatusOK, testutil.DoRequest(handler, req).Code)
	})

	t.Run("no principal is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		testutil.AssertStatusAndError(t, testutil.DoRequest(handler, req), http.StatusUnauthorized, "unauthorized")
	})
}

func TestRequireAnyRole(t *testing.T) {
	engine := authz.NewEngine(nil)
	handler := RequireAnyRole(engine, rbac.RoleClinicAdmin, rbac.RoleAccountManager)(principalEcho())

	req := testutil.WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), testutil.PrincipalFor("6", rbac.RoleCustomerSuccess))
	testutil.AssertStatusAndError(t, testutil.DoRequest(handler, req), http.StatusForbidden, "forbidden")

	req = testutil.WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), testutil.PrincipalFor("5", rbac.RoleAccountManager))
	assert.Equal(t, http.StatusOK, testutil.DoRequest(handler, req).Code)
}
