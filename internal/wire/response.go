package wire

import (
	"github.com/lor00x/goldap/message"

	"github.com/sql2ldap/sql2ldap/internal/directory"
	"github.com/sql2ldap/sql2ldap/internal/ldapresult"
)

// NewBindResponse builds a bind response carrying resultCode.
func NewBindResponse(resultCode ldapresult.Code) message.BindResponse {
	r := message.BindResponse{}
	r.SetResultCode(int(resultCode))
	return r
}

// NewSearchResultEntry builds a search result entry for e, copying every
// attribute value into goldap's wire representation.
func NewSearchResultEntry(e *directory.Entry) message.SearchResultEntry {
	r := message.SearchResultEntry{}
	r.SetObjectName(e.DN)
	for name, values := range e.Attributes {
		attrValues := make([]message.AttributeValue, len(values))
		for i, v := range values {
			attrValues[i] = message.AttributeValue(v)
		}
		r.AddAttribute(message.AttributeDescription(name), attrValues...)
	}
	return r
}

// NewSearchResultDone builds the terminal response of a search.
func NewSearchResultDone(resultCode ldapresult.Code) message.SearchResultDone {
	r := message.SearchResultDone{}
	r.SetResultCode(int(resultCode))
	return r
}

// NewRootDSEEntry builds the synthetic root DSE entry advertising the
// server's single naming context.
func NewRootDSEEntry(suffix string) message.SearchResultEntry {
	r := message.SearchResultEntry{}
	r.SetObjectName("")
	r.AddAttribute("namingContexts", message.AttributeValue(suffix))
	r.AddAttribute("supportedLDAPVersion", message.AttributeValue("3"))
	return r
}

// NewAddResponse, NewModifyResponse, NewDelResponse, NewCompareResponse and
// NewModifyDNResponse build the operation-matching response PDU for each
// write/compare request this server rejects. Each LDAP operation carries
// its own APPLICATION-tagged response type (RFC 4511); replying to, say,
// an AddRequest with anything other than an AddResponse is
// wire-incompatible with a conformant client.
func NewAddResponse(resultCode ldapresult.Code) message.AddResponse {
	r := message.AddResponse{}
	r.SetResultCode(int(resultCode))
	return r
}

func NewModifyResponse(resultCode ldapresult.Code) message.ModifyResponse {
	r := message.ModifyResponse{}
	r.SetResultCode(int(resultCode))
	return r
}

func NewDelResponse(resultCode ldapresult.Code) message.DelResponse {
	r := message.DelResponse{}
	r.SetResultCode(int(resultCode))
	return r
}

func NewCompareResponse(resultCode ldapresult.Code) message.CompareResponse {
	r := message.CompareResponse{}
	r.SetResultCode(int(resultCode))
	return r
}

func NewModifyDNResponse(resultCode ldapresult.Code) message.ModifyDNResponse {
	r := message.ModifyDNResponse{}
	(*message.LDAPResult)(&r).SetResultCode(int(resultCode))
	return r
}

// NewError builds a bind-response-shaped error carrying resultCode and a
// diagnostic message. It is only ever used for the genuinely-unknown-op
// fallback, where no operation-specific response type applies (the request
// itself was not recognised, so there is no PDU tag to mirror) and the
// connection is closed immediately afterwards anyway.
func NewError(resultCode ldapresult.Code, diagnostic string) message.BindResponse {
	r := NewBindResponse(resultCode)
	r.SetDiagnosticMessage(diagnostic)
	return r
}
