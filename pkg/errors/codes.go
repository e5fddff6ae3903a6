package errors

// Code is a machine-readable error code of the form CATEGORY_NNN. Codes are
// stable once assigned; clients and dashboards key on them.
type Code string

const (
	// Validation errors (VAL_xxx), HTTP 400.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// Authentication errors (AUTH_xxx), HTTP 401.

	// CodeAuthentication indicates a general authentication failure, such as
	// a request that carries no credential at all.
	CodeAuthentication Code = "AUTH_001"

	// CodeTokenExpired indicates a correctly signed external identity
	// provider token whose exp claim is in the past.
	CodeTokenExpired Code = "AUTH_002"

	// CodeTokenInvalid indicates an external token that is malformed, names
	// an unknown key, or fails signature verification.
	CodeTokenInvalid Code = "AUTH_003"

	// CodeSessionExpired indicates a first-party session token past its
	// expiry. Expected; the user has to log in again.
	CodeSessionExpired Code = "AUTH_004"

	// CodeSessionInvalid indicates a first-party session token that is
	// malformed, unsigned by this service, or missing its subject.
	CodeSessionInvalid Code = "AUTH_005"

	// CodeUnsupportedKeyMaterial indicates a published key the service
	// cannot turn into a verification key (wrong type, curve or coordinates).
	CodeUnsupportedKeyMaterial Code = "AUTH_006"

	// Authorization errors (AUTHZ_xxx), HTTP 403.

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationDenied indicates the identity lacks a required role.
	CodeAuthorizationDenied Code = "AUTHZ_002"

	// Not found errors (NF_xxx), HTTP 404.

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundUser indicates the requested user was not found.
	CodeNotFoundUser Code = "NF_002"

	// CodeNotFoundActivationToken indicates an unknown activation token.
	CodeNotFoundActivationToken Code = "NF_003"

	// Conflict errors (CONF_xxx), HTTP 409.

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictAlreadyExists indicates a unique constraint rejected the write.
	CodeConflictAlreadyExists Code = "CONF_002"

	// Internal errors (INT_xxx), HTTP 500.

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx), HTTP 503.

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a backing store is unreachable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeKeySetUnavailable indicates the identity provider's key set could
	// not be fetched or parsed.
	CodeKeySetUnavailable Code = "UNAVAIL_003"

	// Timeout errors (TIMEOUT_xxx), HTTP 504.

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"

	// CodeTimeoutDependency indicates a call to a remote dependency timed out.
	CodeTimeoutDependency Code = "TIMEOUT_003"
)

// String returns the code as a plain string.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore ("AUTH" for
// "AUTH_004"). A code without an underscore is its own category.
func (c Code) Category() string {
	s := string(c)
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			return s[:i]
		}
	}
	return s
}
