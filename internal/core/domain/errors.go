package domain

import (
	"errors"
	"fmt"
)

// Code is the stable numeric identifier of a failure. Ranges group subsystems:
// 100s credential/identity, 200s wallet/transfer, 300s device/permission
// (owned by external services), 400s guardian/recovery.
type Code int

// Kind classifies a failure by cause.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindPrecondition  Kind = "precondition"
	KindResource      Kind = "resource"
	KindTemporal      Kind = "temporal"
	KindIntegrity     Kind = "integrity"
	KindUnavailable   Kind = "unavailable"
	KindInternal      Kind = "internal"
)

// Error is a coded operation failure. Sentinels below are compared with
// errors.Is and may be wrapped with fmt.Errorf("%w: ...").
type Error struct {
	Code    Code
	Name    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

func newError(code Code, name string, kind Kind, msg string) *Error {
	return &Error{Code: code, Name: name, Kind: kind, Message: msg}
}

// Credential / identity errors.
var (
	ErrCredentialNotVerified = newError(100, "credential_not_verified", KindAuthorization, "credential is not valid for this owner")
	ErrIdentityUnavailable   = newError(101, "identity_unavailable", KindUnavailable, "identity service call failed")
)

// Wallet / transfer errors.
var (
	ErrWalletExists          = newError(200, "wallet_exists", KindPrecondition, "wallet already initialized")
	ErrWalletNotFound        = newError(201, "wallet_not_found", KindPrecondition, "wallet not found")
	ErrInvalidThreshold      = newError(202, "invalid_threshold", KindResource, "approval threshold out of bounds")
	ErrInvalidAmount         = newError(203, "invalid_amount", KindIntegrity, "amount must be positive")
	ErrInsufficientBalance   = newError(204, "insufficient_balance", KindResource, "balance does not cover amount and fee")
	ErrTransactionNotFound   = newError(205, "transaction_not_found", KindPrecondition, "pending transaction not found")
	ErrAlreadyExecuted       = newError(206, "already_executed", KindPrecondition, "transaction already executed")
	ErrDuplicateApproval     = newError(207, "duplicate_approval", KindIntegrity, "credential already approved this transaction")
	ErrThresholdNotMet       = newError(208, "threshold_not_met", KindPrecondition, "not enough approvals")
	ErrMaxApprovalsReached   = newError(209, "max_approvals_reached", KindResource, "approval set is full")
	ErrInvalidRecipient      = newError(210, "invalid_recipient", KindIntegrity, "recipient must be set")
	ErrTreasuryNotConfigured = newError(211, "treasury_not_configured", KindInternal, "fee configured without treasury principal")
)

// Guardian / recovery errors.
var (
	ErrNotAuthorized             = newError(400, "not_authorized", KindAuthorization, "caller is not authorized")
	ErrSelfGuardian              = newError(401, "self_guardian", KindIntegrity, "owner cannot be its own guardian")
	ErrAlreadyGuardian           = newError(402, "already_guardian", KindPrecondition, "principal is already an active guardian")
	ErrMaxGuardiansReached       = newError(403, "max_guardians_reached", KindResource, "guardian limit reached")
	ErrGuardianNotFound          = newError(404, "guardian_not_found", KindPrecondition, "guardian not found")
	ErrInvalidGuardianThreshold  = newError(405, "invalid_guardian_threshold", KindResource, "guardian threshold out of bounds")
	ErrRecoveryAlreadyActive     = newError(406, "recovery_already_active", KindPrecondition, "a recovery is already active")
	ErrRecoveryNotActive         = newError(407, "recovery_not_active", KindPrecondition, "no active recovery")
	ErrRecoveryDuplicateApproval = newError(408, "recovery_duplicate_approval", KindIntegrity, "guardian already approved this recovery")
	ErrRecoveryThresholdNotMet   = newError(409, "recovery_threshold_not_met", KindPrecondition, "not enough guardian approvals")
	ErrTimelockNotExpired        = newError(410, "timelock_not_expired", KindTemporal, "recovery delay has not elapsed")
	ErrRecoveryAlreadyExecuted   = newError(411, "recovery_already_executed", KindPrecondition, "recovery already executed")
	ErrInvalidNewOwner           = newError(412, "invalid_new_owner", KindIntegrity, "new owner must differ from owner")
	ErrInvalidRecoveryTransition = newError(413, "invalid_recovery_transition", KindPrecondition, "recovery state transition not allowed")
)

// ErrInternal marks storage or wiring failures that are not caller errors.
var ErrInternal = newError(500, "internal", KindInternal, "internal error")

// Internal wraps a non-domain failure (storage, driver) as ErrInternal while
// keeping the cause reachable with errors.Is. Domain errors pass through.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}
