package handler

import (
	"sort"
	"time"

	"fxsettle/internal/payment/models"
	"fxsettle/internal/payment/quorum"
	id "fxsettle/pkg/domain"
	"fxsettle/pkg/fixedpoint"
	audit "fxsettle/pkg/platform/audit"
)

const quorumThreshold = quorum.Threshold

// PaymentResponse renders a payment. Integers travel as decimal strings;
// rates are the 10^18-scaled integers with a human rendering alongside.
type PaymentResponse struct {
	PaymentID          string            `json:"payment_id"`
	Payer              string            `json:"payer"`
	Payee              string            `json:"payee"`
	Instrument         string            `json:"instrument,omitempty"`
	Amount             string            `json:"amount"`
	Rates              map[string]string `json:"rates"`
	SubmissionCount    int               `json:"submission_count"`
	Settled            bool              `json:"settled"`
	AggregatedRate     string            `json:"aggregated_rate,omitempty"`
	AggregatedRateText string            `json:"aggregated_rate_decimal,omitempty"`
	SettledAmount      string            `json:"settled_amount,omitempty"`
	Remainder          string            `json:"remainder,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	SettledAt          *time.Time        `json:"settled_at,omitempty"`
}

func toPaymentResponse(p *models.Payment) PaymentResponse {
	rates := make(map[string]string, len(p.Rates))
	for oracle, rate := range p.Rates {
		rates[oracle.String()] = rate.String()
	}
	return PaymentResponse{
		PaymentID:          p.ID.String(),
		Payer:              p.Payer.String(),
		Payee:              p.Payee.String(),
		Instrument:         p.Instrument.String(),
		Amount:             fixedpoint.String(p.Amount),
		Rates:              rates,
		SubmissionCount:    p.SubmissionCount(),
		Settled:            p.Settled,
		AggregatedRate:     fixedpoint.String(p.AggregatedRate),
		AggregatedRateText: fixedpoint.FormatRate(p.AggregatedRate),
		SettledAmount:      fixedpoint.String(p.SettledAmount),
		Remainder:          fixedpoint.String(p.Remainder),
		CreatedAt:          p.CreatedAt,
		SettledAt:          p.SettledAt,
	}
}

// EventResponse renders one audit event.
type EventResponse struct {
	ID            string    `json:"id"`
	Sequence      int64     `json:"sequence"`
	Type          string    `json:"type"`
	OccurredAt    time.Time `json:"occurred_at"`
	Payer         string    `json:"payer,omitempty"`
	Payee         string    `json:"payee,omitempty"`
	SettledAmount string    `json:"settled_amount,omitempty"`
	Rate          string    `json:"rate,omitempty"`
	Remainder     string    `json:"remainder,omitempty"`
}

type EventsResponse struct {
	PaymentID string          `json:"payment_id"`
	Events    []EventResponse `json:"events"`
}

func toEventsResponse(paymentID id.PaymentID, events []audit.Event) EventsResponse {
	sorted := append([]audit.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	resp := EventsResponse{PaymentID: paymentID.String(), Events: make([]EventResponse, 0, len(sorted))}
	for _, e := range sorted {
		resp.Events = append(resp.Events, EventResponse{
			ID:            e.ID.String(),
			Sequence:      e.Sequence,
			Type:          e.Action,
			OccurredAt:    e.Timestamp,
			Payer:         e.Payer.String(),
			Payee:         e.Payee.String(),
			SettledAmount: e.SettledAmount,
			Rate:          e.Rate,
			Remainder:     e.Remainder,
		})
	}
	return resp
}

type OraclesResponse struct {
	Oracles []string `json:"oracles"`
	Quorum  int      `json:"quorum"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}
