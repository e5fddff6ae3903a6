// Package errors provides the coded error type shared by every package of the
// identity service. Each error carries a machine-readable [Code] of the form
// CATEGORY_NNN, a human-readable message safe to return to clients, an
// optional cause, and optional structured details for logging.
//
// # Categories
//
//   - VAL: request input failed validation (400)
//   - AUTH: a credential was missing, malformed, expired or unverifiable (401)
//   - AUTHZ: the caller is authenticated but not allowed (403)
//   - NF: the addressed record does not exist (404)
//   - CONF: the write conflicts with stored state (409)
//   - INT: unexpected internal failure (500)
//   - UNAVAIL: a dependency such as the identity provider is unreachable (503)
//   - TIMEOUT: a dependency did not answer in time (504)
//
// # Authentication failures
//
// The external token and the first-party session each have two failure
// codes so callers can branch on expiry without string matching:
//
//	switch {
//	case errors.IsSessionExpired(err):
//	    // silently recoverable, the user logs in again
//	case errors.IsSessionInvalid(err):
//	    // possibly tampered, log distinctly
//	}
//
// The package is conventionally imported as sserr to avoid shadowing the
// standard library errors package.
package errors
