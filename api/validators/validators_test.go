package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/shelfwise-backend/pkg/errors"
)

type samplePayload struct {
	SubscriptionID string `json:"subscription_id" validate:"required,uuid"`
	Name           string `json:"name" validate:"required,min=3"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"subscription_id":"nope","name":"ab"}`))
	var dest samplePayload
	err := DecodeJSONBody(req, &dest)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", typed.Details())
	}
	if details["subscription_id"] != "must be a valid UUID" {
		t.Fatalf("unexpected subscription_id message %q", details["subscription_id"])
	}
	if details["name"] != "must be at least 3" {
		t.Fatalf("unexpected name message %q", details["name"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"subscription_id":"`+uuid.NewString()+`","name":"abc","extra":1}`))
	var dest samplePayload
	if err := DecodeJSONBody(req, &dest); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown field, got %v", err)
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid", id.String(), false},
		{"malformed", "123", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("bookId", tt.value)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

		got, err := ParseUUIDParam(req, "bookId")
		if tt.wantErr {
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("%s: expected validation error, got %v", tt.name, err)
			}
			continue
		}
		if err != nil || got != id {
			t.Fatalf("%s: unexpected result %v %v", tt.name, got, err)
		}
	}
}

type walletPayload struct {
	MobileNumber string `json:"mobile_number" validate:"required,msisdn"`
}

func TestDecodeJSONBodyMSISDN(t *testing.T) {
	cases := map[string]bool{
		"0244000000":    true,
		"+233244000000": true,
		"024 400 0000":  true,
		"02440":         false,
		"024-400-0000":  false,
	}
	for number, ok := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"mobile_number":"`+number+`"}`))
		var dest walletPayload
		err := DecodeJSONBody(req, &dest)
		if ok && err != nil {
			t.Fatalf("%q: unexpected error %v", number, err)
		}
		if !ok && !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%q: expected validation error, got %v", number, err)
		}
	}
}

func TestDecodeJSONBodyRejectsTrailingObject(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"mobile_number":"0244000000"}{"mobile_number":"0244000001"}`))
	var dest walletPayload
	if err := DecodeJSONBody(req, &dest); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSanitizeStringKeepsRunes(t *testing.T) {
	if got := SanitizeString("  Ɔkyeame Ama  ", 3); got != "Ɔky" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeString("a   b\tc", 0); got != "a b c" {
		t.Fatalf("expected collapsed whitespace, got %q", got)
	}
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?unreadOnly=true&bad=maybe", nil)
	if v, err := ParseQueryBool(req, "unreadOnly"); err != nil || !v {
		t.Fatalf("expected true, got %v %v", v, err)
	}
	if v, err := ParseQueryBool(req, "missing"); err != nil || v {
		t.Fatalf("expected false default, got %v %v", v, err)
	}
	if _, err := ParseQueryBool(req, "bad"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
