package e2e

import (
	"github.com/cucumber/godog"

	"fxsettle/e2e/steps/common"
	"fxsettle/e2e/steps/payment"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Generic response assertions
	common.RegisterSteps(ctx, tc)

	// Engine setup, payment lifecycle and ledger steps
	payment.RegisterSteps(ctx, tc)
}
