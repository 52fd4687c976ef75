package credential

import (
	"errors"

	dErrors "mediconnect/pkg/domain-errors"
)

// Verification failures. Callers see only CodeUnauthorized with a generic
// message; the sentinel stays in the chain for logging and tests.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpiredCredential = errors.New("expired credential")
	ErrRevokedCredential = errors.New("revoked credential")
)

const rejectionMessage = "invalid or missing credential"

func reject(cause error) error {
	return dErrors.Wrap(cause, dErrors.CodeUnauthorized, rejectionMessage)
}
