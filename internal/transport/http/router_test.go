package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"mediconnect/internal/authz"
	"mediconnect/internal/credential"
	"mediconnect/internal/credential/denylist"
	"mediconnect/internal/directory"
	"mediconnect/internal/platform/metrics"
	ratelimit "mediconnect/internal/ratelimit/middleware"
	"mediconnect/internal/ratelimit/store/bucket"
	"mediconnect/internal/rbac"
	audit "mediconnect/pkg/platform/audit"
	"mediconnect/pkg/platform/audit/store/memory"
	"mediconnect/pkg/testutil"
)

type RouterSuite struct {
	suite.Suite
	router  http.Handler
	store   *memory.InMemoryStore
	trail   *audit.Trail
	creds   *credential.Service
	limiter *bucket.InMemoryBucketStore
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := directory.NewInMemoryStore()
	s.Require().NoError(directory.SeedDemoUsers(ctx, users, bcrypt.MinCost))
	dir := directory.NewService(users, directory.WithHashCost(bcrypt.MinCost), directory.WithLogger(logger))

	s.creds = credential.NewService("router-test-secret", "mediconnect", "mediconnect-api",
		credential.WithDenylist(denylist.NewMemory()))
	engine := authz.NewEngine(nil, authz.WithLogger(logger))

	s.store = memory.NewInMemoryStore()
	var err error
	s.trail, err = audit.NewTrail(ctx, s.store, audit.WithLogger(logger))
	s.Require().NoError(err)
	auditor := NewAuditor(s.trail, logger)

	s.limiter = bucket.NewInMemoryBucketStore(100, 100)
	limits := ratelimit.New(s.limiter, logger)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s.router = NewRouter(logger, m, reg, nil,
		NewHealthHandler(map[string]HealthCheck{"audit": func(context.Context) error { return nil }}),
		NewAuthHandler(dir, s.creds, auditor, logger, time.Hour,
			WithLoginLimiter(limits.RateLimitByIP("login")),
			WithAuthMetrics(m),
		),
		NewAccessControlHandler(dir, s.creds, engine, s.trail, auditor, logger),
	)
}

func (s *RouterSuite) TearDownTest() {
	s.trail.Close()
}

func (s *RouterSuite) do(method, path, token string, body any) *testResponse {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if token != "" {
		testutil.WithBearer(req, token)
	}
	return &testResponse{rr: testutil.DoRequest(s.router, req)}
}

func (s *RouterSuite) login(email string) string {
	resp := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": directory.DemoPassword,
	})
	s.Require().Equal(http.StatusOK, resp.rr.Code, resp.rr.Body.String())
	body := testutil.UnmarshalResponse[loginResponse](s.T(), resp.rr)
	s.Require().NotEmpty(body.Token)
	return body.Token
}

func (s *RouterSuite) records(filter audit.Filter) []audit.Record {
	recs, err := s.trail.Query(context.Background(), filter)
	s.Require().NoError(err)
	return recs
}

func (s *RouterSuite) TestLogin() {
	s.Run("success records LOGIN for the signed-in user", func() {
		resp := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "doctor@example.com", "password": directory.DemoPassword,
		})
		s.Require().Equal(http.StatusOK, resp.rr.Code)
		body := testutil.UnmarshalResponse[loginResponse](s.T(), resp.rr)
		s.Equal(rbac.RoleDoctor, body.User.Role)
		s.Equal("clinic1", *body.User.ClinicID)

		logins := s.records(audit.Filter{Action: audit.ActionLogin, UserID: "2"})
		s.Require().Len(logins, 1)
		s.Equal("doctor@example.com", logins[0].UserEmail)
		s.Equal(audit.ResourceAuth, logins[0].ResourceType)
		s.Equal("/api/auth/login", logins[0].Details.Path)
	})

	s.Run("wrong password is 401 and not recorded", func() {
		before := s.store.Len()
		resp := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "doctor@example.com", "password": "wrong",
		})
		testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusUnauthorized, "unauthorized")
		s.Equal(before, s.store.Len())
	})

	s.Run("malformed body is 400", func() {
		resp := s.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "x", "extra": true})
		testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *RouterSuite) TestForwardedForIgnoredWithoutTrustedProxy() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/auth/login", map[string]string{
		"email": "staff@example.com", "password": directory.DemoPassword,
	})
	req.Header.Set("X-Forwarded-For", "203.0.113.77")
	s.Require().Equal(http.StatusOK, testutil.DoRequest(s.router, req).Code)

	logins := s.records(audit.Filter{Action: audit.ActionLogin, UserID: "4"})
	s.Require().Len(logins, 1)
	s.Equal("192.0.2.1", logins[0].IPAddress)
}

func (s *RouterSuite) TestLogin_RateLimited() {
	s.limiter = bucket.NewInMemoryBucketStore(0.001, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewAuthHandler(nil, s.creds, NewAuditor(s.trail, logger), logger, time.Hour,
		WithLoginLimiter(ratelimit.New(s.limiter, logger).RateLimitByIP("login")))
	router := NewRouter(logger, nil, nil, nil, handler)

	body := map[string]string{"email": "", "password": ""}
	first := testutil.DoRequest(router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/auth/login", body))
	s.Equal(http.StatusBadRequest, first.Code)
	second := testutil.DoRequest(router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/auth/login", body))
	s.Equal(http.StatusTooManyRequests, second.Code)
}

func (s *RouterSuite) TestMeAndLogout() {
	token := s.login("patient@example.com")

	resp := s.do(http.MethodGet, "/api/auth/me", token, nil)
	s.Require().Equal(http.StatusOK, resp.rr.Code)
	me := testutil.UnmarshalResponse[userResponse](s.T(), resp.rr)
	s.Equal("1", me.ID)
	s.Nil(me.ClinicID)

	resp = s.do(http.MethodPost, "/api/auth/logout", token, nil)
	s.Require().Equal(http.StatusOK, resp.rr.Code)
	s.Len(s.records(audit.Filter{Action: audit.ActionLogout, UserID: "1"}), 1)

	resp = s.do(http.MethodGet, "/api/auth/me", token, nil)
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusUnauthorized, "unauthorized")
}

func (s *RouterSuite) TestExpiredCredentialRejected() {
	token, _, err := s.creds.Issue(rbac.Principal{UserID: "3", Role: rbac.RoleClinicAdmin}, -time.Second)
	s.Require().NoError(err)

	resp := s.do(http.MethodGet, "/api/access-control/users", token, nil)
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusUnauthorized, "unauthorized")
}

func (s *RouterSuite) TestPatientDeniedPatientRecordsPermission() {
	token := s.login("patient@example.com")

	resp := s.do(http.MethodPost, "/api/access-control/check-permission", token,
		map[string]string{"permission": string(rbac.PermViewPatientRecords)})
	s.Require().Equal(http.StatusOK, resp.rr.Code)
	s.False(testutil.UnmarshalResponse[checkPermissionResponse](s.T(), resp.rr).HasAccess)

	resp = s.do(http.MethodPost, "/api/access-control/check-permission", token,
		map[string]string{"permission": string(rbac.PermBookAppointment)})
	s.True(testutil.UnmarshalResponse[checkPermissionResponse](s.T(), resp.rr).HasAccess)

	resp = s.do(http.MethodPost, "/api/access-control/check-permission", token, map[string]string{"permission": ""})
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusBadRequest, "validation_error")
}

func (s *RouterSuite) TestListUsersRoleGate() {
	before := s.store.Len()
	patient := s.login("patient@example.com")
	resp := s.do(http.MethodGet, "/api/access-control/users", patient, nil)
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusForbidden, "forbidden")
	s.Equal(before+1, s.store.Len(), "only the login is recorded, never the denied request")

	admin := s.login("admin@example.com")
	resp = s.do(http.MethodGet, "/api/access-control/users", admin, nil)
	s.Require().Equal(http.StatusOK, resp.rr.Code)
	s.Len(testutil.UnmarshalResponse[usersResponse](s.T(), resp.rr).Users, 6)

	views := s.records(audit.Filter{UserID: "3", Action: audit.ActionView, ResourceType: audit.ResourceUser})
	s.Len(views, 1)
}

func (s *RouterSuite) TestGetUserOwnershipAndHierarchy() {
	patient := s.login("patient@example.com")
	doctor := s.login("doctor@example.com")

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/access-control/users/1", patient, nil).rr.Code, "self access")
	testutil.AssertStatusAndError(s.T(), s.do(http.MethodGet, "/api/access-control/users/2", patient, nil).rr,
		http.StatusForbidden, "forbidden")
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/access-control/users/1", doctor, nil).rr.Code, "doctor outranks patient")
	testutil.AssertStatusAndError(s.T(), s.do(http.MethodGet, "/api/access-control/users/3", doctor, nil).rr,
		http.StatusForbidden, "forbidden")
	testutil.AssertStatusAndError(s.T(), s.do(http.MethodGet, "/api/access-control/users/404", doctor, nil).rr,
		http.StatusForbidden, "forbidden")
	manager := s.login("account@example.com")
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/access-control/users/2", manager, nil).rr.Code, "rank covers staff profiles")
	testutil.AssertStatusAndError(s.T(), s.do(http.MethodGet, "/api/access-control/users/1", manager, nil).rr,
		http.StatusForbidden, "forbidden")
}

func (s *RouterSuite) TestGetUserDoesNotRevealUnknownIDs() {
	patient := s.login("patient@example.com")
	existing := s.do(http.MethodGet, "/api/access-control/users/3", patient, nil).rr
	missing := s.do(http.MethodGet, "/api/access-control/users/does-not-exist", patient, nil).rr
	testutil.AssertStatusAndError(s.T(), existing, http.StatusForbidden, "forbidden")
	testutil.AssertStatusAndError(s.T(), missing, http.StatusForbidden, "forbidden")
	s.JSONEq(existing.Body.String(), missing.Body.String())

	admin := s.login("admin@example.com")
	testutil.AssertStatusAndError(s.T(), s.do(http.MethodGet, "/api/access-control/users/does-not-exist", admin, nil).rr,
		http.StatusNotFound, "not_found")
}

func (s *RouterSuite) TestCreateUserCannotOutrankCaller() {
	admin := s.login("admin@example.com")
	before := len(s.records(audit.Filter{Action: audit.ActionCreate}))

	for _, role := range []string{"account_manager", "customer_success"} {
		resp := s.do(http.MethodPost, "/api/access-control/users", admin, map[string]any{
			"name": "Escalated", "email": role + ".new@example.com", "password": "pw", "role": role,
		})
		testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusForbidden, "forbidden")
	}
	s.Len(s.records(audit.Filter{Action: audit.ActionCreate}), before)

	resp := s.do(http.MethodPost, "/api/access-control/users", admin, map[string]any{
		"name": "Peer Admin", "email": "peer.admin@example.com", "password": "pw", "role": "clinic_admin", "clinicId": "clinic1",
	})
	s.Equal(http.StatusCreated, resp.rr.Code, resp.rr.Body.String())

	manager := s.login("account@example.com")
	resp = s.do(http.MethodPost, "/api/access-control/users", manager, map[string]any{
		"name": "Delegate", "email": "delegate@example.com", "password": "pw", "role": "clinic_admin", "clinicId": "clinic2",
	})
	s.Equal(http.StatusCreated, resp.rr.Code, resp.rr.Body.String())
}

func (s *RouterSuite) TestCreateUser() {
	admin := s.login("admin@example.com")
	body := map[string]any{
		"name": "Dr. New", "email": "new.doctor@example.com", "password": "pw", "role": "doctor", "clinicId": "clinic1",
	}

	resp := s.do(http.MethodPost, "/api/access-control/users", admin, body)
	s.Require().Equal(http.StatusCreated, resp.rr.Code, resp.rr.Body.String())
	created := testutil.UnmarshalResponse[createUserResponse](s.T(), resp.rr)
	s.True(created.User.IsActive)

	recs := s.records(audit.Filter{Action: audit.ActionCreate})
	s.Require().Len(recs, 1)
	s.Equal(created.User.ID, *recs[0].ResourceID)

	resp = s.do(http.MethodPost, "/api/access-control/users", admin, body)
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusBadRequest, "validation_error")

	cs := s.login("cs@example.com")
	resp = s.do(http.MethodPost, "/api/access-control/users", cs, body)
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusForbidden, "forbidden")
}

func (s *RouterSuite) TestUpdatePermissions() {
	manager := s.login("account@example.com")

	resp := s.do(http.MethodPut, "/api/access-control/users/4/permissions", manager,
		map[string]any{"permissions": []string{"view_schedule", "manage_appointments"}})
	s.Require().Equal(http.StatusOK, resp.rr.Code)
	s.Equal([]rbac.Permission{rbac.PermManageAppointments, rbac.PermViewSchedule},
		testutil.UnmarshalResponse[updatePermissionsResponse](s.T(), resp.rr).Permissions)

	recs := s.records(audit.Filter{Action: audit.ActionUpdate, ResourceType: audit.ResourcePermissions})
	s.Require().Len(recs, 1)
	s.Equal("4", *recs[0].ResourceID)

	resp = s.do(http.MethodPut, "/api/access-control/users/4/permissions", manager,
		map[string]any{"permissions": []string{"drop_tables"}})
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusBadRequest, "validation_error")
}

func (s *RouterSuite) TestUpdatePermissionsCannotTouchHigherRanks() {
	admin := s.login("admin@example.com")

	resp := s.do(http.MethodPut, "/api/access-control/users/6/permissions", admin,
		map[string]any{"permissions": []string{"view_schedule"}})
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusForbidden, "forbidden")
	resp = s.do(http.MethodPut, "/api/access-control/users/5/permissions", admin,
		map[string]any{"permissions": []string{"view_schedule"}})
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusForbidden, "forbidden")
	s.Empty(s.records(audit.Filter{Action: audit.ActionUpdate, ResourceType: audit.ResourcePermissions}))

	resp = s.do(http.MethodPut, "/api/access-control/users/404/permissions", admin,
		map[string]any{"permissions": []string{"view_schedule"}})
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusNotFound, "not_found")

	resp = s.do(http.MethodPut, "/api/access-control/users/4/permissions", admin,
		map[string]any{"permissions": []string{"*"}})
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusBadRequest, "validation_error")
}

func (s *RouterSuite) TestAuditLogs() {
	s.login("doctor@example.com")
	admin := s.login("admin@example.com")

	resp := s.do(http.MethodGet, "/api/access-control/audit-logs?action=LOGIN&userId=2", admin, nil)
	s.Require().Equal(http.StatusOK, resp.rr.Code)
	logs := testutil.UnmarshalResponse[auditLogsResponse](s.T(), resp.rr).Logs
	s.Require().Len(logs, 1)
	s.Equal("2", logs[0].UserID)
	s.Equal(audit.ActionLogin, logs[0].Action)

	resp = s.do(http.MethodGet, "/api/access-control/audit-logs?resourceType=AUDIT_LOG", admin, nil)
	s.Require().Equal(http.StatusOK, resp.rr.Code)
	s.Len(testutil.UnmarshalResponse[auditLogsResponse](s.T(), resp.rr).Logs, 1,
		"the first review is visible to the second, not to itself")

	resp = s.do(http.MethodGet, "/api/access-control/audit-logs?startDate=yesterday", admin, nil)
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusBadRequest, "validation_error")

	staff := s.login("staff@example.com")
	resp = s.do(http.MethodGet, "/api/access-control/audit-logs", staff, nil)
	testutil.AssertStatusAndError(s.T(), resp.rr, http.StatusForbidden, "forbidden")
}

func (s *RouterSuite) TestAuditIDsAreGapFreeAcrossRequests() {
	s.login("doctor@example.com")
	admin := s.login("admin@example.com")
	s.do(http.MethodGet, "/api/access-control/users", admin, nil)
	s.do(http.MethodGet, "/api/access-control/me/permissions", admin, nil)

	recs := s.records(audit.Filter{})
	s.Require().Len(recs, 4)
	for i, r := range recs {
		s.Equal(audit.RecordID(i+1), r.ID)
	}
}

func (s *RouterSuite) TestMyPermissions() {
	doctor := s.login("doctor@example.com")
	resp := s.do(http.MethodGet, "/api/access-control/me/permissions", doctor, nil)
	s.Require().Equal(http.StatusOK, resp.rr.Code)
	body := testutil.UnmarshalResponse[myPermissionsResponse](s.T(), resp.rr)
	s.Equal(rbac.RoleDoctor, body.Role)
	s.Contains(body.Permissions, rbac.PermViewPatientRecords)
	s.NotContains(body.Permissions, rbac.PermManageUsers)
}

func (s *RouterSuite) TestHealthAndMetrics() {
	resp := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, resp.rr.Code)
	s.Contains(resp.rr.Body.String(), `"status":"ok"`)

	s.login("patient@example.com")
	resp = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, resp.rr.Code)
	s.Contains(resp.rr.Body.String(), "mediconnect_logins_total")
}

func (s *RouterSuite) TestHealthDegraded() {
	router := NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil, nil,
		NewHealthHandler(map[string]HealthCheck{"redis": func(context.Context) error { return errors.New("down") }}))
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/health", nil))
	s.Equal(http.StatusServiceUnavailable, rr.Code)
	s.Contains(rr.Body.String(), `"redis":"unavailable"`)
}
