package ratelimit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers sign-in throttling and enumeration step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I fail authentication (\d+) times for "([^"]*)"$`, steps.failAuthNTimes)
	ctx.Step(`^some attempt should have returned (\d+)$`, steps.someAttemptReturned)
	ctx.Step(`^I attempt login with invalid username "([^"]*)"$`, steps.attemptLoginInvalidUsername)
	ctx.Step(`^I attempt login with valid username "([^"]*)" but invalid password$`, steps.attemptLoginValidUserInvalidPassword)
	ctx.Step(`^the response error message should be the same generic message$`, steps.errorMessageShouldBeSameGeneric)
}

type ratelimitSteps struct {
	tc       TestContext
	statuses []int
	// bodies of the failed sign-ins compared for enumeration
	bodies []string
}

func (s *ratelimitSteps) login(email, password string) error {
	return s.tc.POST("/api/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	})
}

func (s *ratelimitSteps) failAuthNTimes(ctx context.Context, times int, email string) error {
	s.statuses = s.statuses[:0]
	for i := 0; i < times; i++ {
		if err := s.login(email, "definitely-wrong"); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) someAttemptReturned(ctx context.Context, status int) error {
	for _, got := range s.statuses {
		if got == status {
			return nil
		}
	}
	return fmt.Errorf("no attempt returned %d: %v", status, s.statuses)
}

func (s *ratelimitSteps) attemptLoginInvalidUsername(ctx context.Context, email string) error {
	if err := s.login(email, "whatever-password"); err != nil {
		return err
	}
	s.bodies = append(s.bodies, string(s.tc.GetLastResponseBody()))
	return nil
}

func (s *ratelimitSteps) attemptLoginValidUserInvalidPassword(ctx context.Context, email string) error {
	if err := s.login(email, "definitely-wrong"); err != nil {
		return err
	}
	s.bodies = append(s.bodies, string(s.tc.GetLastResponseBody()))
	return nil
}

func (s *ratelimitSteps) errorMessageShouldBeSameGeneric(ctx context.Context) error {
	if len(s.bodies) < 2 {
		return fmt.Errorf("need two failed sign-ins to compare, have %d", len(s.bodies))
	}
	for _, b := range s.bodies[1:] {
		if b != s.bodies[0] {
			return fmt.Errorf("sign-in errors differ: %q vs %q", s.bodies[0], b)
		}
	}
	return nil
}
