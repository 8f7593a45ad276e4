package ledgerclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("http://ledger.test/", "ledger-key", WithHTTPClient(&http.Client{Transport: rt}), WithNetwork("testnet"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  ", "key"); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

func TestSubmitSendsHeadersAndBody(t *testing.T) {
	var captured *http.Request
	var payload map[string]any
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		return jsonResponse(http.StatusCreated, `{"reference":"0xabc","order_id":"o-1","fingerprint":"0xf00","block_number":42,"confirmed_at":"2026-01-02T03:04:05Z"}`), nil
	})

	receipt, err := client.Submit(context.Background(), SubmitRequest{OrderID: "o-1", Fingerprint: "0xf00", IdempotencyKey: "o-1:3"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if captured.Method != http.MethodPost || captured.URL.String() != "http://ledger.test/v1/anchors" {
		t.Fatalf("unexpected request %s %s", captured.Method, captured.URL)
	}
	if captured.Header.Get("X-API-Key") != "ledger-key" {
		t.Fatalf("api key header missing")
	}
	if captured.Header.Get("Idempotency-Key") != "o-1:3" {
		t.Fatalf("idempotency key header missing")
	}
	if payload["network"] != "testnet" || payload["fingerprint"] != "0xf00" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if _, leaked := payload["IdempotencyKey"]; leaked {
		t.Fatalf("idempotency key must not be serialized in the body")
	}
	if receipt.Reference != "0xabc" || receipt.BlockNumber != 42 || receipt.ConfirmedAt.IsZero() {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		code   pkgerrors.Code
	}{
		{name: "transport", err: errors.New("dial tcp: connection refused"), code: pkgerrors.CodeExternalUnavailable},
		{name: "server error", status: http.StatusBadGateway, code: pkgerrors.CodeExternalUnavailable},
		{name: "throttled", status: http.StatusTooManyRequests, code: pkgerrors.CodeExternalUnavailable},
		{name: "not found", status: http.StatusNotFound, code: pkgerrors.CodeNotFound},
		{name: "bad request", status: http.StatusBadRequest, code: pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return jsonResponse(tt.status, `{"error":"nope"}`), nil
			})
			_, err := client.Get(context.Background(), "0xabc")
			if !pkgerrors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestFindByOrderReturnsNilWhenMissing(t *testing.T) {
	var capturedURL string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return jsonResponse(http.StatusNotFound, `{}`), nil
	})

	receipt, err := client.FindByOrder(context.Background(), "o-9")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if receipt != nil {
		t.Fatalf("expected no receipt, got %+v", receipt)
	}
	if capturedURL != "http://ledger.test/v1/anchors?order_id=o-9" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
}

func TestGetEscapesReference(t *testing.T) {
	var capturedPath string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedPath = req.URL.EscapedPath()
		return jsonResponse(http.StatusOK, `{"reference":"a/b"}`), nil
	})
	if _, err := client.Get(context.Background(), "a/b"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if capturedPath != "/v1/anchors/a%2Fb" {
		t.Fatalf("unexpected path %q", capturedPath)
	}
}
