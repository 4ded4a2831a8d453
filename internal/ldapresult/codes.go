// Package ldapresult defines the LDAP result codes this server can return,
// as their standard RFC 4511 numeric values. Keeping them here rather than
// reaching into the wire-protocol library's constants lets
// internal/directory and internal/filter stay free of any BER/goldap
// dependency.
package ldapresult

// Code is an LDAP result code, per RFC 4511 section 4.1.9.
type Code int

const (
	Success                Code = 0
	OperationsError        Code = 1
	ProtocolError          Code = 2
	TimeLimitExceeded      Code = 3
	SizeLimitExceeded      Code = 4
	CompareFalse           Code = 5
	AuthMethodNotSupported Code = 7
	NoSuchObject           Code = 32
	UnwillingToPerform     Code = 53
	Other                  Code = 80
)

func (c Code) String() string {
	switch c {
	case Success:
		return "Success"
	case OperationsError:
		return "OperationsError"
	case ProtocolError:
		return "ProtocolError"
	case TimeLimitExceeded:
		return "TimeLimitExceeded"
	case SizeLimitExceeded:
		return "SizeLimitExceeded"
	case CompareFalse:
		return "CompareFalse"
	case AuthMethodNotSupported:
		return "AuthMethodNotSupported"
	case NoSuchObject:
		return "NoSuchObject"
	case UnwillingToPerform:
		return "UnwillingToPerform"
	case Other:
		return "Other"
	default:
		return "Unknown"
	}
}
