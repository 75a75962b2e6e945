package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fxsettle/internal/payment/models"
	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
	audit "fxsettle/pkg/platform/audit"
	"fxsettle/pkg/platform/httputil"
	"fxsettle/pkg/platform/middleware/admin"
	"fxsettle/pkg/platform/middleware/caller"
	"fxsettle/pkg/platform/middleware/version"
	"fxsettle/pkg/requestcontext"
)

// Service defines the interface for payment operations.
type Service interface {
	InitiatePayment(ctx context.Context, req models.InitiateRequest) (*models.Payment, error)
	SubmitRate(ctx context.Context, req models.SubmitRateRequest) (*models.Payment, error)
	GetPayment(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
	ListEvents(ctx context.Context, paymentID id.PaymentID) ([]audit.Event, error)
	Roster() []id.AccountID
	Balance(ctx context.Context, account id.AccountID) (*big.Int, error)
	FundPool(ctx context.Context, amount *big.Int) error
}

// Handler handles the payment endpoints.
type Handler struct {
	logger     *slog.Logger
	payments   Service
	adminToken string
}

type Option func(*Handler)

// WithAdminToken enables the operator routes behind X-Admin-Token.
func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminToken = token
	}
}

// New creates a new payment Handler.
func New(payments Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{logger: logger, payments: payments}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the v1 routes. Mutations require an authenticated caller;
// reads are open.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(version.ExtractVersion(id.APIVersionV1))
		v1.Use(version.RejectNewerClients(h.logger))

		v1.Get("/oracles", h.handleListOracles)
		v1.Get("/payments/{id}", h.handleGetPayment)
		v1.Get("/payments/{id}/events", h.handleListEvents)
		v1.Get("/accounts/{account}/balance", h.handleGetBalance)

		v1.Group(func(authed chi.Router) {
			authed.Use(caller.RequireCaller(h.logger))
			authed.Post("/payments", h.handleInitiatePayment)
			authed.Post("/payments/{id}/rates", h.handleSubmitRate)
		})

		if h.adminToken != "" {
			v1.With(admin.RequireAdminToken(h.adminToken, h.logger)).
				Post("/admin/liquidity", h.handleFundPool)
		}
	})
}

func (h *Handler) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[InitiatePaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	p, err := h.payments.InitiatePayment(ctx, req.ToModel())
	if err != nil {
		h.logFailure(ctx, "failed to initiate payment", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toPaymentResponse(p))
}

func (h *Handler) handleSubmitRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitRateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	p, err := h.payments.SubmitRate(ctx, req.ToModel(paymentID))
	if err != nil {
		h.logFailure(ctx, "failed to submit rate", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.payments.GetPayment(ctx, paymentID)
	if err != nil {
		h.logFailure(ctx, "failed to get payment", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.payments.ListEvents(ctx, paymentID)
	if err != nil {
		h.logFailure(ctx, "failed to list events", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventsResponse(paymentID, events))
}

func (h *Handler) handleListOracles(w http.ResponseWriter, _ *http.Request) {
	members := h.payments.Roster()
	resp := OraclesResponse{Oracles: make([]string, 0, len(members)), Quorum: quorumThreshold}
	for _, m := range members {
		resp.Oracles = append(resp.Oracles, m.String())
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	balance, err := h.payments.Balance(ctx, account)
	if err != nil {
		h.logFailure(ctx, "failed to read balance", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Account: account.String(), Balance: balance.String()})
}

func (h *Handler) handleFundPool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[FundPoolRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.payments.FundPool(ctx, req.amount); err != nil {
		h.logFailure(ctx, "failed to fund pool", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// logFailure logs internal errors at error level and business rejections at
// info; both carry the request id.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return
	}
	h.logger.InfoContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"code", string(code),
	)
}
