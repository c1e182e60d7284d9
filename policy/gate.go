// Package policy decides whether an attestation outcome blocks the response of the
// action it accompanies.
package policy

import (
	"net/http"

	"github.com/p2einferno/inferno-checkin/attest"
)

// Mode selects how attestation failures are treated.
type Mode int

const (
	// FailClosed blocks on any attestation failure.
	FailClosed Mode = iota
	// GracefulDegrade blocks only when the signature is bound to another wallet.
	GracefulDegrade
)

func (m Mode) String() string {
	if m == GracefulDegrade {
		return "graceful-degrade"
	}
	return "fail-closed"
}

// ModeFromConfig maps the graceful-degrade flag to a Mode.
func ModeFromConfig(graceful bool) Mode {
	if graceful {
		return GracefulDegrade
	}
	return FailClosed
}

// Response codes used in the {code, message, data} envelope.
const (
	CodeAttestationInvalid  = 40020
	CodeAttestationConflict = 40920
	CodeAttestationFailed   = 50020
	CodeAttestationConfig   = 50021
	CodeAttestationChain    = 50320
)

// Decision is the gate's verdict. When Block is false the caller proceeds and reports
// AttestationUID, which is nil for skipped or swallowed failures.
type Decision struct {
	Block          bool
	Status         int
	Code           int
	Message        string
	AttestationUID *string
	// Swallowed is set when a failure was ignored under GracefulDegrade.
	Swallowed error
}

// Decide applies mode to a commit outcome.
func Decide(res *attest.Result, err error, mode Mode) Decision {
	if err == nil && res != nil && res.Success {
		return Decision{Status: http.StatusOK, AttestationUID: res.UID}
	}

	ae, ok := attest.AsError(err)
	if !ok {
		ae = &attest.Error{Kind: attest.KindInternal, Code: "commit_failed", Err: err}
	}

	if mode == GracefulDegrade && ae.Code != attest.CodeRecipientMismatch {
		return Decision{Status: http.StatusOK, Swallowed: ae}
	}

	d := Decision{Block: true}
	switch ae.Kind {
	case attest.KindValidation:
		d.Status, d.Code = http.StatusBadRequest, CodeAttestationInvalid
		d.Message = "Attestation rejected: " + ae.Code
	case attest.KindConflict:
		d.Status, d.Code = http.StatusConflict, CodeAttestationConflict
		d.Message = "Attestation already in progress"
	case attest.KindConfig:
		d.Status, d.Code = http.StatusInternalServerError, CodeAttestationConfig
		d.Message = "Attestation not configured: " + ae.Code
	case attest.KindTransient:
		d.Status, d.Code = http.StatusServiceUnavailable, CodeAttestationChain
		d.Message = "Attestation failed: " + ae.Code
	default:
		d.Status, d.Code = http.StatusInternalServerError, CodeAttestationFailed
		d.Message = "Attestation failed"
	}
	return d
}
