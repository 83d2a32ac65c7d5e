package authn

import "fmt"

// ErrorCode identifies why a token was rejected during context construction.
type ErrorCode string

const (
	CodeMissingClaims    ErrorCode = "MISSING_CLAIMS"
	CodeExpiredToken     ErrorCode = "EXPIRED_TOKEN"
	CodeInvalidFormat    ErrorCode = "INVALID_FORMAT"
	CodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	CodeInvalidAudience  ErrorCode = "INVALID_AUDIENCE"
)

// ClaimError is a structured token rejection. It carries the machine-readable
// code plus the offending claim name and value for diagnostics. Claim errors
// are always fatal to the current request; callers map them to 401.
type ClaimError struct {
	Code  ErrorCode
	Claim string
	Value interface{}
}

func (e *ClaimError) Error() string {
	if e.Claim == "" {
		return fmt.Sprintf("token rejected: %s", e.Code)
	}
	return fmt.Sprintf("token rejected: %s (claim %q, value %v)", e.Code, e.Claim, e.Value)
}

func newClaimError(code ErrorCode, claim string, value interface{}) *ClaimError {
	return &ClaimError{Code: code, Claim: claim, Value: value}
}
