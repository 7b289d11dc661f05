package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		detailsOK bool
		exposed   bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true, exposed: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required", exposed: true},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied", exposed: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found", exposed: true},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", exposed: true},
		{code: CodeInsufficientStock, status: http.StatusBadRequest, publicMsg: "insufficient stock", detailsOK: true, exposed: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", exposed: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error"},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.Exposed != tt.exposed {
			t.Fatalf("code %s expected exposed %v got %v", tt.code, tt.exposed, meta.Exposed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !errors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	if Wrap(CodeConflict, nil, "ctx").Unwrap() != nil {
		t.Fatalf("nil cause should produce a plain error")
	}
}

func TestAsAndCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("medicine 4"))
	typed := As(err)
	if typed == nil {
		t.Fatalf("expected typed error in chain")
	}
	if typed.Message() != "medicine 4 not found" {
		t.Fatalf("unexpected message %q", typed.Message())
	}
	if CodeOf(err) != CodeNotFound {
		t.Fatalf("expected not found code, got %s", CodeOf(err))
	}
	if CodeOf(errors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors should map to internal")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should be nil")
	}
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "sales_invoice_number_key", TableName: "sales"}
	err := Wrap(CodeConflict, pgErr, "insert sale")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.PGCode != "23505" || d.PGConstraint != "sales_invoice_number_key" || d.PGTable != "sales" {
		t.Fatalf("postgres fields not extracted: %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected chain of 2, got %d", len(d.Chain))
	}
	if _, ok := d.Fields()["pg_code"]; !ok {
		t.Fatalf("expected pg_code in fields")
	}
	if _, ok := Dump(errors.New("x")).Fields()["pg_code"]; ok {
		t.Fatalf("pg fields should be omitted for non-postgres errors")
	}
}
