package access

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	PUT(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetLastResponseBody() []byte
}

// RegisterSteps registers access-control and audit log step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &accessSteps{tc: tc}

	ctx.Step(`^I list users$`, steps.listUsers)
	ctx.Step(`^I view user "([^"]*)"$`, steps.viewUser)
	ctx.Step(`^I check permission "([^"]*)"$`, steps.checkPermission)
	ctx.Step(`^I list my permissions$`, steps.listMyPermissions)
	ctx.Step(`^I create a "([^"]*)" user with email "([^"]*)"$`, steps.createUser)
	ctx.Step(`^I set permissions "([^"]*)" on user "([^"]*)"$`, steps.setPermissions)
	ctx.Step(`^I query audit logs for action "([^"]*)" and user "([^"]*)"$`, steps.queryAuditLogs)

	ctx.Step(`^the response should contain at least (\d+) audit logs?$`, steps.atLeastNAuditLogs)
	ctx.Step(`^every audit log should have "([^"]*)" equal to "([^"]*)"$`, steps.everyAuditLogField)
	ctx.Step(`^audit log ids should be strictly increasing$`, steps.auditIDsIncreasing)
}

type accessSteps struct {
	tc TestContext
}

type auditLogs struct {
	Logs []map[string]interface{} `json:"logs"`
}

func (s *accessSteps) listUsers(ctx context.Context) error {
	return s.tc.GET("/api/access-control/users", nil)
}

func (s *accessSteps) viewUser(ctx context.Context, id string) error {
	return s.tc.GET("/api/access-control/users/"+url.PathEscape(id), nil)
}

func (s *accessSteps) checkPermission(ctx context.Context, perm string) error {
	return s.tc.POST("/api/access-control/check-permission", map[string]interface{}{
		"permission": perm,
	})
}

func (s *accessSteps) listMyPermissions(ctx context.Context) error {
	return s.tc.GET("/api/access-control/me/permissions", nil)
}

func (s *accessSteps) createUser(ctx context.Context, role, email string) error {
	return s.tc.POST("/api/access-control/users", map[string]interface{}{
		"name":     "E2E " + role,
		"email":    email,
		"password": "e2e-password",
		"role":     role,
	})
}

func (s *accessSteps) setPermissions(ctx context.Context, perm, id string) error {
	return s.tc.PUT("/api/access-control/users/"+url.PathEscape(id)+"/permissions", map[string]interface{}{
		"permissions": []string{perm},
	})
}

func (s *accessSteps) queryAuditLogs(ctx context.Context, action, userID string) error {
	q := url.Values{}
	q.Set("action", action)
	q.Set("userId", userID)
	return s.tc.GET("/api/access-control/audit-logs?"+q.Encode(), nil)
}

func (s *accessSteps) logs() ([]map[string]interface{}, error) {
	var body auditLogs
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &body); err != nil {
		return nil, fmt.Errorf("decode audit logs: %w", err)
	}
	return body.Logs, nil
}

func (s *accessSteps) atLeastNAuditLogs(ctx context.Context, n int) error {
	logs, err := s.logs()
	if err != nil {
		return err
	}
	if len(logs) < n {
		return fmt.Errorf("expected at least %d audit logs, got %d", n, len(logs))
	}
	return nil
}

func (s *accessSteps) everyAuditLogField(ctx context.Context, field, expected string) error {
	logs, err := s.logs()
	if err != nil {
		return err
	}
	for _, l := range logs {
		if got := fmt.Sprint(l[field]); got != expected {
			return fmt.Errorf("audit log %v has %s=%q, want %q", l["id"], field, got, expected)
		}
	}
	return nil
}

func (s *accessSteps) auditIDsIncreasing(ctx context.Context) error {
	logs, err := s.logs()
	if err != nil {
		return err
	}
	prev := 0.0
	for _, l := range logs {
		id, ok := l["id"].(float64)
		if !ok {
			return fmt.Errorf("audit log without numeric id: %v", l)
		}
		if id <= prev {
			return fmt.Errorf("audit ids not increasing: %v after %v", id, prev)
		}
		prev = id
	}
	return nil
}
