package ldapsession

import (
	"errors"
	"regexp"
	"strconv"

	ldap "github.com/go-ldap/ldap/v3"
)

// statusByCode maps the AD sub-codes observed in bind diagnostics (and the
// two LDAP resultCodes that need no sub-code) to their NT status names.
// The sub-codes are the hex tokens AD emits after "data" in the
// AcceptSecurityContext diagnostic.
var statusByCode = map[string]string{
	"1":   "STATUS_NOT_SUPPORTED",
	"533": "STATUS_ACCOUNT_DISABLED",
	"701": "STATUS_ACCOUNT_EXPIRED",
	"531": "STATUS_ACCOUNT_RESTRICTION",
	"530": "STATUS_INVALID_LOGON_HOURS",
	"532": "STATUS_PASSWORD_EXPIRED",
	"773": "STATUS_PASSWORD_MUST_CHANGE",
	"775": "USER_ACCOUNT_LOCKED",
	"50":  "LDAP_INSUFFICIENT_ACCESS",
}

var (
	// "... AcceptSecurityContext error, data 52e, v4563"
	dataCodePattern = regexp.MustCompile(`data ([0-9a-fA-F]+)`)

	// Kerberos rejections carry their own error names end to end.
	kdcErrPattern = regexp.MustCompile(`KDC_ERR_[A-Z0-9_]+`)
)

// classifyBind turns a failed bind into a *BindError. Kerberos protocol
// errors keep their KDC error name; LDAP errors are classified by
// resultCode, refined by the AD "data" sub-code for invalidCredentials.
func classifyBind(err error) *BindError {
	if name := kdcErrPattern.FindString(err.Error()); name != "" {
		return &BindError{Code: name, Status: name, Err: err}
	}

	var lerr *ldap.Error
	if !errors.As(err, &lerr) {
		return &BindError{Code: "unknown", Err: err}
	}

	code := strconv.Itoa(int(lerr.ResultCode))
	if lerr.ResultCode == ldap.LDAPResultInvalidCredentials && lerr.Err != nil {
		if m := dataCodePattern.FindStringSubmatch(lerr.Err.Error()); m != nil {
			code = m[1]
		}
	}

	return &BindError{Code: code, Status: statusByCode[code], Err: err}
}

// strongerAuthRequired reports whether the server demanded signing or TLS
// (resultCode 8), the trigger for the one-time LDAPS escalation.
func strongerAuthRequired(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultStrongAuthRequired)
}
