// Package spnego implements the authentication mechanisms SESSION_SETUP
// negotiates through: NTLMSSP and Kerberos 5, each wrapped in a minimal
// SPNEGO (RFC 4178) envelope. It supplies smb/session with the
// AuthProvider contract that drives the SESSION_SETUP request/response
// loop, grounded on ericblavier-go-smb's main.go usage of
// spnego.NTLMInitiator{User, Password, Domain} — the package itself was
// not present in the retrieved copy of that repo, so it is rebuilt here
// from that call-site contract plus msultra-spnego's NTLM provider and
// gokrb5, both already in the teacher's dependency graph (see
// DESIGN.md).
package spnego

import "encoding/asn1"

// AuthProvider is what smb/session drives through one or more
// SESSION_SETUP round trips. Negotiate is called once to build the
// first request's security buffer; Authenticate is called with each
// subsequent response's security buffer until done is true.
type AuthProvider interface {
	Negotiate() ([]byte, error)
	Authenticate(serverToken []byte) (clientToken []byte, done bool, err error)
	SessionKey() []byte
}

// Identifier is implemented by AuthProviders that know who they
// authenticated as, so smb/session can expose it the way
// ericblavier-go-smb's session.GetAuthUsername() does.
type Identifier interface {
	AuthUsername() string
	AuthDomain() string
}

var (
	spnegoOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 2}
	ntlmOID   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 2, 10}
	krb5OID   = asn1.ObjectIdentifier{1, 2, 840, 113554, 1, 2, 2}
)

// negTokenInit is the ASN.1 structure of a SPNEGO NegTokenInit
// (RFC 4178 §4.2.1), application-tagged 0 and wrapped in the GSS-API
// generic mechanism-independent token header (RFC 2743 §3.1).
type negTokenInit struct {
	MechTypes []asn1.ObjectIdentifier `asn1:"explicit,tag:0"`
	MechToken []byte                  `asn1:"explicit,optional,tag:2"`
}

type negTokenResp struct {
	NegState      asn1.Enumerated       `asn1:"explicit,optional,tag:0"`
	SupportedMech asn1.ObjectIdentifier `asn1:"explicit,optional,tag:1"`
	ResponseToken []byte                `asn1:"explicit,optional,tag:2"`
}

// wrapInitToken builds the outer SPNEGO NegTokenInit carrying mechToken
// as the chosen mechanism's initial token, prefixed with the GSS-API
// generic token framing the mechanism OID (so a server that only speaks
// raw NTLMSSP or raw Kerberos can still recognize and unwrap it).
func wrapInitToken(mechOID asn1.ObjectIdentifier, mechToken []byte) ([]byte, error) {
	inner, err := asn1.MarshalWithParams(negTokenInit{
		MechTypes: []asn1.ObjectIdentifier{mechOID},
		MechToken: mechToken,
	}, "")
	if err != nil {
		return nil, err
	}
	oidBytes, err := asn1.Marshal(spnegoOID)
	if err != nil {
		return nil, err
	}
	body := append(append([]byte{}, oidBytes...), asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: inner}.FullBytes...)
	return append(gssAPIHeader(len(body)), body...), nil
}

// gssAPIHeader produces the RFC 2743 §3.1 generic token tag
// (application-class constructed tag 0) with a BER length for a body of
// the given size.
func gssAPIHeader(bodyLen int) []byte {
	lenBytes := berLength(bodyLen)
	tag := byte(0x60) // application, constructed, tag 0
	return append([]byte{tag}, lenBytes...)
}

func berLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte(n & 0xff)}, b...)
		n >>= 8
	}
	return append([]byte{0x80 | byte(len(b))}, b...)
}

// unwrapResponseToken extracts the mechanism-specific token from a
// server's NegTokenResp. Some servers (and the initial loopback in this
// module's own tests) send the bare mechanism token instead; callers
// should fall back to treating the whole buffer as the mechanism token
// if this returns an error.
func unwrapResponseToken(buf []byte) ([]byte, error) {
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(buf, &raw); err != nil {
		return nil, err
	}
	var resp negTokenResp
	if _, err := asn1.UnmarshalWithParams(raw.Bytes, &resp, ""); err != nil {
		return nil, err
	}
	return resp.ResponseToken, nil
}
