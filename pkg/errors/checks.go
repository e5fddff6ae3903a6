package errors

import (
	"errors"
)

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "" when
// there is none.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries exactly code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation reports whether err is a VAL error.
func IsValidation(err error) bool { return hasCategory(err, "VAL") }

// IsAuthentication reports whether err is an AUTH error.
func IsAuthentication(err error) bool { return hasCategory(err, "AUTH") }

// IsAuthorization reports whether err is an AUTHZ error.
func IsAuthorization(err error) bool { return hasCategory(err, "AUTHZ") }

// IsNotFound reports whether err is an NF error.
func IsNotFound(err error) bool { return hasCategory(err, "NF") }

// IsConflict reports whether err is a CONF error.
func IsConflict(err error) bool { return hasCategory(err, "CONF") }

// IsInternal reports whether err is an INT error.
func IsInternal(err error) bool { return hasCategory(err, "INT") }

// IsUnavailable reports whether err is an UNAVAIL error.
func IsUnavailable(err error) bool { return hasCategory(err, "UNAVAIL") }

// IsTimeout reports whether err is a TIMEOUT error.
func IsTimeout(err error) bool { return hasCategory(err, "TIMEOUT") }

// IsRetryable reports whether err is a TIMEOUT or UNAVAIL error.
func IsRetryable(err error) bool {
	return IsTimeout(err) || IsUnavailable(err)
}

// IsTokenExpired reports whether err is an expired external token.
func IsTokenExpired(err error) bool { return HasCode(err, CodeTokenExpired) }

// IsTokenInvalid reports whether err is an invalid external token.
func IsTokenInvalid(err error) bool { return HasCode(err, CodeTokenInvalid) }

// IsSessionExpired reports whether err is an expired session token.
func IsSessionExpired(err error) bool { return HasCode(err, CodeSessionExpired) }

// IsSessionInvalid reports whether err is an invalid session token.
func IsSessionInvalid(err error) bool { return HasCode(err, CodeSessionInvalid) }

// IsSessionFailure reports whether err is one of the two expected session
// validation outcomes. Anything else from a session validator is an
// unexpected fault.
func IsSessionFailure(err error) bool {
	return IsSessionExpired(err) || IsSessionInvalid(err)
}

// IsClientError reports whether err maps to a 4xx status.
func IsClientError(err error) bool {
	switch GetCode(err).Category() {
	case "VAL", "AUTH", "AUTHZ", "NF", "CONF":
		return true
	default:
		return false
	}
}

// IsServerError reports whether err maps to a 5xx status.
func IsServerError(err error) bool {
	switch GetCode(err).Category() {
	case "INT", "UNAVAIL", "TIMEOUT":
		return true
	default:
		return false
	}
}
