package payment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	StartEngine(oracles string) error
	POST(path, caller string, body any) error
	GET(path string) error
	LastStatus() int
	ResponseBody() string
	DecodeResponse(out any) error
	RejectIncoming(account string) error
}

// RegisterSteps registers payment lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &paymentSteps{tc: tc}

	// Setup
	ctx.Step(`^an engine with oracles "([^"]*)"$`, steps.engineWithOracles)
	ctx.Step(`^the escrow pool holds (\d+) of liquidity$`, steps.poolHoldsLiquidity)
	ctx.Step(`^account "([^"]*)" rejects incoming transfers$`, steps.accountRejectsIncoming)

	// Actions
	ctx.Step(`^"([^"]*)" initiates payment "([^"]*)" of (\d+) to "([^"]*)"$`, steps.initiatePayment)
	ctx.Step(`^"([^"]*)" submits rate "([^"]*)" for payment "([^"]*)"$`, steps.submitRate)
	ctx.Step(`^oracles "([^"]*)" submit rates "([^"]*)" for payment "([^"]*)"$`, steps.submitRates)

	// Assertions
	ctx.Step(`^payment "([^"]*)" should be settled with rate "([^"]*)" and amount "([^"]*)"$`, steps.paymentShouldBeSettled)
	ctx.Step(`^payment "([^"]*)" should be unsettled with (\d+) submissions?$`, steps.paymentShouldBeUnsettled)
	ctx.Step(`^payment "([^"]*)" should not exist$`, steps.paymentShouldNotExist)
	ctx.Step(`^account "([^"]*)" should hold "([^"]*)"$`, steps.accountShouldHold)
	ctx.Step(`^payment "([^"]*)" should have events "([^"]*)"$`, steps.paymentShouldHaveEvents)
}

type paymentSteps struct {
	tc TestContext
}

type paymentView struct {
	Settled         bool              `json:"settled"`
	SubmissionCount int               `json:"submission_count"`
	Rates           map[string]string `json:"rates"`
	AggregatedRate  string            `json:"aggregated_rate"`
	SettledAmount   string            `json:"settled_amount"`
}

func (s *paymentSteps) engineWithOracles(_ context.Context, oracles string) error {
	return s.tc.StartEngine(oracles)
}

func (s *paymentSteps) poolHoldsLiquidity(_ context.Context, amount int) error {
	if err := s.tc.POST("/v1/admin/liquidity", "", map[string]string{"amount": strconv.Itoa(amount)}); err != nil {
		return err
	}
	return s.expectStatus(204)
}

func (s *paymentSteps) accountRejectsIncoming(_ context.Context, account string) error {
	return s.tc.RejectIncoming(account)
}

func (s *paymentSteps) initiatePayment(_ context.Context, payer, paymentID string, amount int, payee string) error {
	return s.tc.POST("/v1/payments", payer, map[string]string{
		"payment_id": paymentID,
		"payee":      payee,
		"amount":     strconv.Itoa(amount),
	})
}

func (s *paymentSteps) submitRate(_ context.Context, oracle, rate, paymentID string) error {
	return s.tc.POST(paymentPath(paymentID)+"/rates", oracle, map[string]string{"rate": rate})
}

func (s *paymentSteps) submitRates(ctx context.Context, oracles, rates, paymentID string) error {
	names, rs := strings.Split(oracles, ","), strings.Split(rates, ",")
	if len(names) != len(rs) {
		return fmt.Errorf("%d oracles but %d rates", len(names), len(rs))
	}
	for i := range names {
		if err := s.submitRate(ctx, strings.TrimSpace(names[i]), strings.TrimSpace(rs[i]), paymentID); err != nil {
			return err
		}
		if err := s.expectStatus(200); err != nil {
			return err
		}
	}
	return nil
}

func (s *paymentSteps) paymentShouldBeSettled(_ context.Context, paymentID, rate, amount string) error {
	p, err := s.fetch(paymentID)
	if err != nil {
		return err
	}
	if !p.Settled {
		return fmt.Errorf("payment %s is not settled", paymentID)
	}
	if p.AggregatedRate != rate {
		return fmt.Errorf("expected aggregated rate %s, got %s", rate, p.AggregatedRate)
	}
	if p.SettledAmount != amount {
		return fmt.Errorf("expected settled amount %s, got %s", amount, p.SettledAmount)
	}
	return nil
}

func (s *paymentSteps) paymentShouldBeUnsettled(_ context.Context, paymentID string, submissions int) error {
	p, err := s.fetch(paymentID)
	if err != nil {
		return err
	}
	if p.Settled || p.AggregatedRate != "" {
		return fmt.Errorf("payment %s should not be settled", paymentID)
	}
	if p.SubmissionCount != submissions {
		return fmt.Errorf("expected %d submissions, got %d (%v)", submissions, p.SubmissionCount, p.Rates)
	}
	return nil
}

func (s *paymentSteps) paymentShouldNotExist(_ context.Context, paymentID string) error {
	if err := s.tc.GET(paymentPath(paymentID)); err != nil {
		return err
	}
	return s.expectStatus(404)
}

func (s *paymentSteps) accountShouldHold(_ context.Context, account, want string) error {
	if err := s.tc.GET("/v1/accounts/" + url.PathEscape(account) + "/balance"); err != nil {
		return err
	}
	if err := s.expectStatus(200); err != nil {
		return err
	}
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := s.tc.DecodeResponse(&resp); err != nil {
		return err
	}
	if resp.Balance != want {
		return fmt.Errorf("expected %s to hold %s, got %s", account, want, resp.Balance)
	}
	return nil
}

func (s *paymentSteps) paymentShouldHaveEvents(_ context.Context, paymentID, want string) error {
	if err := s.tc.GET(paymentPath(paymentID) + "/events"); err != nil {
		return err
	}
	if err := s.expectStatus(200); err != nil {
		return err
	}
	var resp struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	if err := s.tc.DecodeResponse(&resp); err != nil {
		return err
	}
	got := make([]string, 0, len(resp.Events))
	for _, e := range resp.Events {
		got = append(got, e.Type)
	}
	if strings.Join(got, ",") != want {
		return fmt.Errorf("expected events %s, got %s", want, strings.Join(got, ","))
	}
	return nil
}

func (s *paymentSteps) fetch(paymentID string) (*paymentView, error) {
	if err := s.tc.GET(paymentPath(paymentID)); err != nil {
		return nil, err
	}
	if err := s.expectStatus(200); err != nil {
		return nil, err
	}
	var p paymentView
	if err := s.tc.DecodeResponse(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *paymentSteps) expectStatus(status int) error {
	if got := s.tc.LastStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.ResponseBody())
	}
	return nil
}

func paymentPath(paymentID string) string {
	return "/v1/payments/" + url.PathEscape(paymentID)
}
