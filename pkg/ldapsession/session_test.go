package ldapsession

import (
	"errors"
	"fmt"
	"testing"

	ldap "github.com/go-ldap/ldap/v3"
)

func TestBaseDN(t *testing.T) {
	for _, tc := range []struct {
		domain string
		want   string
	}{
		{"corp.local", "dc=corp,dc=local"},
		{"sub.corp.local", "dc=sub,dc=corp,dc=local"},
		{"local", "dc=local"},
	} {
		if got := BaseDN(tc.domain); got != tc.want {
			t.Errorf("BaseDN(%q) = %q, want %q", tc.domain, got, tc.want)
		}
	}
}

func TestClassifyBindDataCodes(t *testing.T) {
	// AD packs the real rejection reason into the diagnostic of an
	// invalidCredentials result.
	for _, tc := range []struct {
		data   string
		status string
	}{
		{"533", "STATUS_ACCOUNT_DISABLED"},
		{"701", "STATUS_ACCOUNT_EXPIRED"},
		{"531", "STATUS_ACCOUNT_RESTRICTION"},
		{"530", "STATUS_INVALID_LOGON_HOURS"},
		{"532", "STATUS_PASSWORD_EXPIRED"},
		{"773", "STATUS_PASSWORD_MUST_CHANGE"},
		{"775", "USER_ACCOUNT_LOCKED"},
	} {
		t.Run(tc.data, func(t *testing.T) {
			diag := fmt.Errorf(
				"80090308: LdapErr: DSID-0C090447, comment: AcceptSecurityContext error, data %s, v4563",
				tc.data)
			err := ldap.NewError(ldap.LDAPResultInvalidCredentials, diag)

			bindErr := classifyBind(err)
			if bindErr.Code != tc.data {
				t.Errorf("expected code %q, got %q", tc.data, bindErr.Code)
			}
			if bindErr.Status != tc.status {
				t.Errorf("expected status %q, got %q", tc.status, bindErr.Status)
			}
		})
	}
}

func TestClassifyBindResultCodes(t *testing.T) {
	// insufficientAccessRights needs no sub-code
	bindErr := classifyBind(ldap.NewError(ldap.LDAPResultInsufficientAccessRights,
		errors.New("insufficient access")))
	if bindErr.Code != "50" || bindErr.Status != "LDAP_INSUFFICIENT_ACCESS" {
		t.Errorf("unexpected classification: code %q status %q", bindErr.Code, bindErr.Status)
	}

	// unknown sub-code: code surfaces, status stays empty
	diag := errors.New("AcceptSecurityContext error, data 52e, v4563")
	bindErr = classifyBind(ldap.NewError(ldap.LDAPResultInvalidCredentials, diag))
	if bindErr.Code != "52e" {
		t.Errorf("expected code 52e, got %q", bindErr.Code)
	}
	if bindErr.Status != "" {
		t.Errorf("expected no status for unknown sub-code, got %q", bindErr.Status)
	}

	// non-LDAP errors are not classified
	bindErr = classifyBind(errors.New("connection reset"))
	if bindErr.Code != "unknown" || bindErr.Status != "" {
		t.Errorf("unexpected classification of plain error: %+v", bindErr)
	}
}

func TestClassifyBindKerberos(t *testing.T) {
	// Kerberos protocol errors keep their KDC error name verbatim
	for _, name := range []string{"KDC_ERR_CLIENT_REVOKED", "KDC_ERR_PREAUTH_FAILED"} {
		err := fmt.Errorf("[Root cause: KDC_Error] KDC_Error: AS Exchange Error: %s", name)
		bindErr := classifyBind(err)
		if bindErr.Status != name {
			t.Errorf("expected status %q, got %q", name, bindErr.Status)
		}
	}
}

func TestStrongerAuthRequired(t *testing.T) {
	if !strongerAuthRequired(ldap.NewError(ldap.LDAPResultStrongAuthRequired,
		errors.New("stronger auth required"))) {
		t.Error("resultCode 8 must trigger the LDAPS escalation")
	}
	if strongerAuthRequired(ldap.NewError(ldap.LDAPResultInvalidCredentials,
		errors.New("invalid credentials"))) {
		t.Error("resultCode 49 must not trigger the LDAPS escalation")
	}
	if strongerAuthRequired(errors.New("plain error")) {
		t.Error("non-LDAP errors must not trigger the LDAPS escalation")
	}
}

func TestBindErrorMessages(t *testing.T) {
	withStatus := &BindError{Code: "533", Status: "STATUS_ACCOUNT_DISABLED", Err: errors.New("x")}
	if got := withStatus.Error(); got != "bind rejected: STATUS_ACCOUNT_DISABLED (code 533)" {
		t.Errorf("unexpected message: %q", got)
	}

	var target *BindError
	if !errors.As(error(withStatus), &target) {
		t.Error("BindError must satisfy errors.As")
	}
}
