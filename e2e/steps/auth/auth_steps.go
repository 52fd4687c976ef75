package auth

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// DemoPassword is the password of every seeded demo account.
const DemoPassword = "password123"

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetAccessToken() string
	SetAccessToken(token string)
}

// RegisterSteps registers authentication-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^I am logged in as "([^"]*)"$`, steps.loggedInAs)
	ctx.Step(`^I log in as "([^"]*)" with password "([^"]*)"$`, steps.logIn)
	ctx.Step(`^I request my profile$`, steps.requestProfile)
	ctx.Step(`^I log out$`, steps.logOut)
	ctx.Step(`^I GET "([^"]*)" with invalid token "([^"]*)"$`, steps.getWithInvalidToken)
	ctx.Step(`^I GET "([^"]*)" without a token$`, steps.getWithoutToken)
}

type authSteps struct {
	tc TestContext
}

func (s *authSteps) loggedInAs(ctx context.Context, email string) error {
	if err := s.logIn(ctx, email, DemoPassword); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("login as %s returned %d", email, status)
	}
	return nil
}

func (s *authSteps) logIn(ctx context.Context, email, password string) error {
	s.tc.SetAccessToken("")
	body := map[string]interface{}{
		"email":    email,
		"password": password,
	}
	if err := s.tc.POST("/api/auth/login", body); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return nil
	}
	token, err := s.tc.GetResponseField("token")
	if err != nil {
		return err
	}
	s.tc.SetAccessToken(token.(string))
	return nil
}

func (s *authSteps) requestProfile(ctx context.Context) error {
	return s.tc.GET("/api/auth/me", nil)
}

// logOut keeps the token so later steps can prove it was revoked.
func (s *authSteps) logOut(ctx context.Context) error {
	return s.tc.POST("/api/auth/logout", nil)
}

func (s *authSteps) getWithInvalidToken(ctx context.Context, path, token string) error {
	return s.tc.GET(path, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func (s *authSteps) getWithoutToken(ctx context.Context, path string) error {
	saved := s.tc.GetAccessToken()
	s.tc.SetAccessToken("")
	defer s.tc.SetAccessToken(saved)
	return s.tc.GET(path, nil)
}
