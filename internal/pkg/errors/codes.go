package errors

import (
	"fmt"
	"net/http"
)

// Template error codes.
const (
	CodeTemplateNotFound = "TEMPLATE_NOT_FOUND"
	CodeTemplateInactive = "TEMPLATE_INACTIVE"
	CodeTemplateExists   = "TEMPLATE_VERSION_EXISTS"
)

// Deployment lifecycle error codes.
const (
	CodeNoHistory               = "NO_HISTORY"
	CodeProvisionFailed         = "PROVISION_FAILED"
	CodeRoutingUpdateFailed     = "ROUTING_UPDATE_FAILED"
	CodeResourceDeleteFailed    = "RESOURCE_DELETE_FAILED" // non-fatal, recorded on the deployment
	CodeDeploymentPersistFailed = "DEPLOYMENT_PERSIST_FAILED"
	CodeAccountBusy             = "ACCOUNT_BUSY"
)

// Account and request error codes.
const (
	CodeAccountNotFound  = "ACCOUNT_NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeAsyncUnavailable = "ASYNC_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrTemplateNotFoundf reports a missing template reference.
func ErrTemplateNotFoundf(templateID string) *AppError {
	return NotFound(CodeTemplateNotFound, fmt.Sprintf("template %q not found", templateID)).
		WithParams(map[string]interface{}{"template_id": templateID})
}

// ErrTemplateInactivef reports a template that can no longer be deployed.
func ErrTemplateInactivef(templateID, version string) *AppError {
	return Conflict(CodeTemplateInactive, fmt.Sprintf("template %q is not active", templateID)).
		WithParams(map[string]interface{}{"template_id": templateID, "version": version})
}

// ErrNoHistoryf reports a rollback request with nothing to roll back to.
func ErrNoHistoryf(accountID string) *AppError {
	return Conflict(CodeNoHistory, "no transition history; supply template_id or use_built_in").
		WithParams(map[string]interface{}{"account_id": accountID})
}

// ErrAccountNotFoundf reports an unknown tenant.
func ErrAccountNotFoundf(accountID string) *AppError {
	return NotFound(CodeAccountNotFound, fmt.Sprintf("account %q has no deployment", accountID)).
		WithParams(map[string]interface{}{"account_id": accountID})
}

// ErrValidation reports a malformed request.
func ErrValidation(message string) *AppError {
	return BadRequest(CodeValidation, message)
}

// ErrProvisionFailed wraps a failed create call on the provisioning API.
func ErrProvisionFailed(err error) *AppError {
	return Wrap(err, CodeProvisionFailed, "external resource creation failed", http.StatusBadGateway)
}

// ErrRoutingUpdateFailed wraps a failed routing re-point.
func ErrRoutingUpdateFailed(err error) *AppError {
	return Wrap(err, CodeRoutingUpdateFailed, "routing update failed; new resource discarded", http.StatusBadGateway)
}

// ErrDeploymentPersistFailed wraps a failed atomic deployment write.
func ErrDeploymentPersistFailed(err error) *AppError {
	return Wrap(err, CodeDeploymentPersistFailed, "failed to persist deployment transition", http.StatusInternalServerError)
}

// ErrAccountBusyf reports that another operation holds the tenant lease.
func ErrAccountBusyf(accountID string) *AppError {
	return Conflict(CodeAccountBusy, fmt.Sprintf("account %q has an operation in progress", accountID)).
		WithParams(map[string]interface{}{"account_id": accountID})
}

// ErrAsyncUnavailable reports an async request with no job queue configured.
func ErrAsyncUnavailable() *AppError {
	return Unavailable(CodeAsyncUnavailable, "asynchronous execution requires the postgres store and river")
}

// ErrTemplateExistsf reports an attempt to republish an existing version.
func ErrTemplateExistsf(name, version string) *AppError {
	return Conflict(CodeTemplateExists, fmt.Sprintf("template %s@%s already exists", name, version)).
		WithParams(map[string]interface{}{"name": name, "version": version})
}
