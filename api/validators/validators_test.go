package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
)

type sampleBody struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
	Reason  string `json:"reason" validate:"required,max=10"`
	Amount  int64  `json:"amount" validate:"gt=0"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_id":"nope","reason":"","amount":0}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)

	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %#v", typed.Details())
	}
	if details["order_id"] != "must be a valid uuid" {
		t.Fatalf("unexpected order_id message %q", details["order_id"])
	}
	if details["reason"] != "is required" {
		t.Fatalf("unexpected reason message %q", details["reason"])
	}
	if details["amount"] != "must be greater than 0" {
		t.Fatalf("unexpected amount message %q", details["amount"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_id":"`+uuid.NewString()+`","reason":"x","amount":1,"extra":true}`))
	var body sampleBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", id.String())
	got, err := ParseUUIDParam(req, "orderId")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}

	bad := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", "123")
	if _, err := ParseUUIDParam(bad, "orderId"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello world  ", 5); got != "hello" {
		t.Fatalf("unexpected %q", got)
	}
}

func withParam(r *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}
