package bitget

import (
	"errors"
	"fmt"
)

// Sentinel errors for the adapter failure taxonomy. Callers classify with
// errors.Is; richer detail travels in the wrapping error text.
var (
	// ErrAuth indicates a bad signature, key or passphrase. Fatal for the
	// affected adapter instance.
	ErrAuth = errors.New("bitget: authentication failed")

	// ErrInvalidSymbol indicates a symbol the exchange does not list.
	ErrInvalidSymbol = errors.New("bitget: invalid symbol")

	// ErrRateLimited indicates the exchange throttled the request after all
	// retries were exhausted.
	ErrRateLimited = errors.New("bitget: rate limited")

	// ErrNetwork indicates a transport-level failure after all retries.
	ErrNetwork = errors.New("bitget: network error")

	// ErrShutdown is returned for requests issued while the adapter is
	// draining. Position polls swallow it silently.
	ErrShutdown = errors.New("bitget: shutdown in progress")

	// ErrDegraded is returned for trading calls when no credentials were
	// configured. Market-data reads still work in this mode.
	ErrDegraded = errors.New("bitget: degraded mode, order placement disabled")
)

// ExchangeError is a non-retryable error envelope returned by the exchange.
type ExchangeError struct {
	Code string
	Msg  string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("bitget: exchange error %s: %s", e.Code, e.Msg)
}

// Exchange error codes that get special treatment.
const (
	codeOK             = "00000"
	codeURLNotFound    = "40404" // known transient "request URL not found" response
	codeBadSignature   = "40009"
	codeBadAPIKey      = "40006"
	codeBadPassphrase  = "40011"
	codeTooManyRequest = "429"
	codeAlreadyHedged  = "45117" // position mode already set
	codeSymbolUnknown  = "40034"
)

// classifyExchangeError maps an exchange error envelope onto the taxonomy.
func classifyExchangeError(code, msg string) error {
	switch code {
	case codeBadSignature, codeBadAPIKey, codeBadPassphrase:
		return fmt.Errorf("%w: code=%s msg=%s", ErrAuth, code, msg)
	case codeSymbolUnknown:
		return fmt.Errorf("%w: code=%s msg=%s", ErrInvalidSymbol, code, msg)
	case codeTooManyRequest:
		return fmt.Errorf("%w: code=%s msg=%s", ErrRateLimited, code, msg)
	default:
		return &ExchangeError{Code: code, Msg: msg}
	}
}

// isRetryableCode reports whether an exchange response code is a known
// transient condition worth retrying.
func isRetryableCode(httpStatus int, code string) bool {
	if httpStatus == 429 {
		return true
	}
	// Bitget intermittently answers 404 with its "request URL not found"
	// envelope on perfectly valid paths.
	if httpStatus == 404 && code == codeURLNotFound {
		return true
	}
	return httpStatus >= 500
}
