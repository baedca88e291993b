package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeTemplateNotFound, "template not found", http.StatusNotFound),
			want: "TEMPLATE_NOT_FOUND: template not found",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("dial tcp: timeout"), CodeProvisionFailed, "create failed", http.StatusBadGateway),
			want: "PROVISION_FAILED: create failed: dial tcp: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := ErrRoutingUpdateFailed(inner)

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
	if appErr.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want 502", appErr.HTTPStatus)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain error", fmt.Errorf("boom"), CodeInternal},
		{"app error", ErrNoHistoryf("acct-1"), CodeNoHistory},
		{"wrapped app error", fmt.Errorf("rollback: %w", ErrTemplateInactivef("tpl-1", "1.0.0")), CodeTemplateInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("plan: %w", ErrTemplateNotFoundf("tpl-x"))
	if !HasCode(err, CodeTemplateNotFound) {
		t.Error("HasCode should match wrapped TEMPLATE_NOT_FOUND")
	}
	if HasCode(err, CodeTemplateInactive) {
		t.Error("HasCode should not match a different code")
	}
}

func TestWithParams_Merges(t *testing.T) {
	err := ErrTemplateNotFoundf("tpl-1").WithParams(map[string]interface{}{"account_id": "acct-1"})

	if err.Params["template_id"] != "tpl-1" {
		t.Errorf("template_id param = %v, want tpl-1", err.Params["template_id"])
	}
	if err.Params["account_id"] != "acct-1" {
		t.Errorf("account_id param = %v, want acct-1", err.Params["account_id"])
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantStatus int
	}{
		{"NotFound", NotFound("NF", "not found"), http.StatusNotFound},
		{"BadRequest", BadRequest("BR", "bad request"), http.StatusBadRequest},
		{"Conflict", Conflict("CF", "conflict"), http.StatusConflict},
		{"Internal", Internal("IE", "internal"), http.StatusInternalServerError},
		{"Unavailable", Unavailable("UN", "unavailable"), http.StatusServiceUnavailable},
		{"Validation", ErrValidation("account_id is required"), http.StatusBadRequest},
		{"AccountNotFound", ErrAccountNotFoundf("acct-9"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.wantStatus)
			}
		})
	}
}
