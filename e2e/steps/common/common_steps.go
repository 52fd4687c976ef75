package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(key string) string
}

// RegisterSteps registers generic request and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I GET "([^"]*)"$`, steps.get)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, steps.fieldShouldBeBool)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.responseShouldContain)
	ctx.Step(`^the response header "([^"]*)" should be set$`, steps.headerShouldBeSet)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.GET(path, nil)
}

func (s *commonSteps) statusShouldBe(ctx context.Context, expected int) error {
	if got := s.tc.GetLastResponseStatus(); got != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldEqual(ctx context.Context, field, expected string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("expected %s=%q, got %q", field, expected, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeBool(ctx context.Context, field, expected string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("field %s is not a boolean: %v", field, v)
	}
	if fmt.Sprint(b) != expected {
		return fmt.Errorf("expected %s=%s, got %t", field, expected, b)
	}
	return nil
}

func (s *commonSteps) responseShouldContain(ctx context.Context, text string) error {
	if !strings.Contains(string(s.tc.GetLastResponseBody()), text) {
		return fmt.Errorf("response does not contain %q: %s", text, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) headerShouldBeSet(ctx context.Context, key string) error {
	if s.tc.GetLastResponseHeader(key) == "" {
		return fmt.Errorf("header %s not set", key)
	}
	return nil
}
