// Package attest submits delegated EAS attestations through a server-held relayer and
// records the resulting UID on the record being attested.
package attest

import (
	"errors"
	"fmt"
)

// Kind classifies a commit failure so callers can choose a response without parsing text.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConfig
	KindTransient
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Stable codes carried in Error.Code.
const (
	CodeMissingField        = "missing_field"
	CodeRecipientMismatch   = "recipient_mismatch"
	CodeTargetNotFound      = "target_not_found"
	CodeUnknownTarget       = "unknown_target"
	CodeSchemaNotConfigured = "schema_not_configured"
	CodeSchemaUIDMismatch   = "schema_uid_mismatch"
	CodeSchemaDrift         = "schema_definition_drift"
	CodeDeadlineExpired     = "deadline_expired"
	CodeNetworkMismatch     = "network_mismatch"
	CodeNetworkUnknown      = "network_not_configured"
	CodeBadSignature        = "bad_signature"
	CodeRevocableMismatch   = "revocable_mismatch"
	CodeDataMismatch        = "schema_data_mismatch"
	CodeRelayerMissing      = "relayer_not_configured"
	CodeInFlight            = "commit_in_progress"
	CodeChainUnavailable    = "chain_unavailable"
	CodeLookupFailed        = "lookup_failed"
	CodePersistFailed       = "persist_failed"
)

// Error is a classified commit failure.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newErr(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

func validation(code, msg string) *Error {
	return newErr(KindValidation, code, errors.New(msg))
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
