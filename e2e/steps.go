package e2e

import (
	"github.com/cucumber/godog"

	"mediconnect/e2e/steps/access"
	"mediconnect/e2e/steps/auth"
	"mediconnect/e2e/steps/common"
	"mediconnect/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register authentication-specific steps
	auth.RegisterSteps(ctx, tc)

	// Register access-control and audit steps
	access.RegisterSteps(ctx, tc)

	// Register sign-in throttling steps
	ratelimit.RegisterSteps(ctx, tc)
}
