package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", retryable: true, detailsOK: true},
		{code: CodeInvalidState, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeNotReversible, status: http.StatusUnprocessableEntity, publicMsg: "movement cannot be reversed", detailsOK: true},
		{code: CodeConfiguration, status: http.StatusUnprocessableEntity, publicMsg: "missing configuration", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeInvalidState, "not pending"))
	if got := As(err); got == nil || got.Code() != CodeInvalidState {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeInvalidState) {
		t.Fatalf("IsCode should match wrapped code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestInsufficientStockCarriesShortage(t *testing.T) {
	shortage := StockShortage{
		TenantID:   "tenant",
		ItemID:     uuid.New(),
		LocationID: uuid.New(),
		Requested:  decimal.NewFromInt(12),
		Available:  decimal.NewFromInt(3),
	}
	err := InsufficientStock(shortage)
	if err.Code() != CodeInsufficientStock {
		t.Fatalf("unexpected code %s", err.Code())
	}
	got, ok := ShortageOf(fmt.Errorf("wrapped: %w", err))
	if !ok {
		t.Fatal("expected shortage details")
	}
	if !got.Requested.Equal(shortage.Requested) || !got.Available.Equal(shortage.Available) {
		t.Fatalf("unexpected shortage %+v", got)
	}
	if _, ok := ShortageOf(New(CodeValidation, "x")); ok {
		t.Fatal("validation errors carry no shortage")
	}
}

func TestDumpIncludesAllowedDetails(t *testing.T) {
	err := fmt.Errorf("ctx: %w", New(CodeValidation, "bad").WithDetails(map[string]string{"qty": "must be positive"}))
	dump := Dump(err)
	if dump.Code != CodeValidation {
		t.Fatalf("unexpected code %s", dump.Code)
	}
	if dump.Details == nil {
		t.Fatal("expected details in dump")
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(dump.Chain))
	}
}

func TestDumpCarriesShortage(t *testing.T) {
	shortage := StockShortage{
		TenantID:   "t1",
		ItemID:     uuid.New(),
		LocationID: uuid.New(),
		Requested:  decimal.NewFromInt(4),
		Available:  decimal.NewFromInt(1),
	}
	dump := Dump(fmt.Errorf("exit: %w", InsufficientStock(shortage)))
	if dump.Shortage == nil {
		t.Fatal("expected shortage in dump")
	}
	if !dump.Shortage.Available.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("unexpected available %s", dump.Shortage.Available)
	}
	if !dump.Structured() {
		t.Fatal("typed dump should be structured")
	}
	if Dump(stdErrors.New("plain")).Structured() {
		t.Fatal("plain dump should not be structured")
	}
}
