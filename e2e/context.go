package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"fxsettle/internal/app"
	"fxsettle/internal/platform/config"
	id "fxsettle/pkg/domain"
	"fxsettle/pkg/platform/middleware/admin"
	"fxsettle/pkg/platform/middleware/caller"
)

const adminToken = "e2e-operator"

// TestContext drives one in-process engine per scenario over real HTTP.
type TestContext struct {
	app    *app.App
	server *httptest.Server
	client *http.Client

	lastStatus int
	lastBody   []byte
}

func NewTestContext() *TestContext {
	return &TestContext{client: &http.Client{Timeout: 10 * time.Second}}
}

// StartEngine replaces any running engine with a fresh in-memory one.
func (tc *TestContext) StartEngine(oracles string) error {
	tc.Close()
	a, err := app.Build(context.Background(), config.Server{
		AdminToken: adminToken,
		Payment: config.PaymentConfig{
			Oracles:   oracles,
			TxTimeout: 2 * time.Second,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	tc.app = a
	tc.server = httptest.NewServer(a.Router)
	return nil
}

// Close stops the running engine, if any.
func (tc *TestContext) Close() {
	if tc.server != nil {
		tc.server.Close()
		tc.server = nil
	}
	if tc.app != nil {
		_ = tc.app.Close()
		tc.app = nil
	}
	tc.lastStatus = 0
	tc.lastBody = nil
}

// Request sends a JSON request as caller; an empty caller sends no identity.
func (tc *TestContext) Request(method, path, callerID string, body any) error {
	if tc.server == nil {
		return errors.New("no engine running")
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.server.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if callerID != "" {
		req.Header.Set(caller.HeaderCallerID, callerID)
	}
	if strings.HasPrefix(path, "/v1/admin/") {
		req.Header.Set(admin.HeaderAdminToken, adminToken)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) POST(path, callerID string, body any) error {
	return tc.Request(http.MethodPost, path, callerID, body)
}

func (tc *TestContext) GET(path string) error {
	return tc.Request(http.MethodGet, path, "", nil)
}

func (tc *TestContext) LastStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) ResponseBody() string {
	return string(tc.lastBody)
}

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return v, nil
}

// DecodeResponse unmarshals the last response into out.
func (tc *TestContext) DecodeResponse(out any) error {
	return json.Unmarshal(tc.lastBody, out)
}

// RejectIncoming makes account refuse every transfer it receives.
func (tc *TestContext) RejectIncoming(account string) error {
	if tc.app == nil || tc.app.MemoryLedger == nil {
		return errors.New("receive hooks need the in-memory ledger")
	}
	tc.app.MemoryLedger.SetReceiveHook(id.AccountID(account), func(context.Context, id.AccountID, *big.Int) error {
		return errors.New("payee refused value")
	})
	return nil
}
