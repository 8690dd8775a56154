package ldapsession

import "fmt"

// BindError is an authentication rejection from the directory, classified
// into an NT status name where the server's diagnostic allows it.
type BindError struct {
	Code   string // LDAP resultCode or AD "data" sub-code, as a string
	Status string // classified status name, e.g. STATUS_ACCOUNT_DISABLED
	Err    error
}

func (e *BindError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("bind rejected: %s (code %s)", e.Status, e.Code)
	}
	return fmt.Sprintf("bind rejected: code %s: %v", e.Code, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ConnectError is a transport-level failure before any bind took place.
type ConnectError struct {
	Host string
	Hint string
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("connect to %s: %v (%s)", e.Host, e.Err, e.Hint)
	}
	return fmt.Sprintf("connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
