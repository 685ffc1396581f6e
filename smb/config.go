package smb

import (
	"time"

	"github.com/ericblavier/go-smb3/smb/crypto"
	"github.com/ericblavier/go-smb3/smb/encoder"
	"github.com/ericblavier/go-smb3/spnego"
)

// Options is the connection's configuration surface (spec §6), built as
// a literal the way ericblavier-go-smb/main.go builds smb.Options{Host,
// Port, Initiator: &spnego.NTLMInitiator{...}} — this is a library, so
// there is no flag/viper layer here, just a struct and a defaulting
// constructor.
type Options struct {
	Host string
	Port int

	// Initiator drives SESSION_SETUP. A nil Initiator skips SESSION_SETUP
	// entirely: the connection is NEGOTIATE-only and reports
	// IsAuthenticated() false. An NTLMInitiator with every field empty
	// (main.go's testNegotiation path) does run SESSION_SETUP.
	Initiator spnego.AuthProvider

	// Dialects overrides negotiate.DefaultClient's offered dialect list.
	// Nil means offer every dialect this module implements, 2.0.2
	// through 3.1.1.
	Dialects []uint16

	// ProbeSMB1, if set, sends the legacy SMB1 multi-protocol negotiate
	// first. If the server does not answer with the SMB2 wildcard
	// dialect, that is only logged, and the native SMB2 NEGOTIATE is
	// sent either way. Off by default: this
	// module never serves SMB1, it only optionally probes for a server
	// that needs the old negotiate to agree to speak SMB2 at all.
	ProbeSMB1 bool

	// RequestTimeout bounds the dials in NewConnection and Reconnect, the
	// SESSION_SETUP exchange run by NewConnection, and the LOGOFF sent by
	// Close. Other calls (TreeConnect, Echo, Tree and Handle operations)
	// are bounded only by the context the caller passes in.
	RequestTimeout time.Duration

	// CreditWindowTarget/CreditWindowMax bound the mux credit pool:
	// Target is the steady-state credit count requested back on every
	// response, Max is the ceiling the server is ever asked to grant.
	CreditWindowTarget int
	CreditWindowMax    int

	// RequireEncryption, if set, fails TreeConnect for any share the
	// server didn't mark ShareFlagEncryptData, instead of connecting
	// unencrypted.
	RequireEncryption bool

	// Ciphers and SigningAlgorithms are the encryption and signing
	// algorithms offered in NEGOTIATE, in preference order. Empty means
	// DefaultConfig's lists.
	Ciphers           []uint16
	SigningAlgorithms []uint16
}

// DefaultConfig returns the baseline Options SPEC_FULL.md's AMBIENT
// STACK section states: a 128-credit steady-state window, an 8192-credit
// ceiling, and a 30-second per-request timeout.
func DefaultConfig() Options {
	return Options{
		Port:               445,
		CreditWindowTarget: 128,
		CreditWindowMax:    8192,
		RequestTimeout:     30 * time.Second,
		Ciphers:            []uint16{crypto.CipherAES256GCM, crypto.CipherAES128GCM, crypto.CipherAES256CCM, crypto.CipherAES128CCM},
		SigningAlgorithms:  []uint16{crypto.SigningAlgAESGMAC, crypto.SigningAlgAESCMAC, crypto.SigningAlgHMACSHA256},
	}
}

// withDefaults fills any zero-valued field of o from DefaultConfig,
// leaving non-zero caller choices untouched. A Port of 0 counts as unset
// and becomes 445.
func (o Options) withDefaults() Options {
	d := DefaultConfig()
	if o.Port == 0 {
		o.Port = d.Port
	}
	if o.CreditWindowTarget == 0 {
		o.CreditWindowTarget = d.CreditWindowTarget
	}
	if o.CreditWindowMax == 0 {
		o.CreditWindowMax = d.CreditWindowMax
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	if len(o.Ciphers) == 0 {
		o.Ciphers = d.Ciphers
	}
	if len(o.SigningAlgorithms) == 0 {
		o.SigningAlgorithms = d.SigningAlgorithms
	}
	return o
}

func (o Options) validate() error {
	if o.Host == "" {
		return &ConfigurationError{Field: "Host"}
	}
	return nil
}

func (o Options) dialects() []uint16 {
	if len(o.Dialects) > 0 {
		return o.Dialects
	}
	return []uint16{encoder.Dialect202, encoder.Dialect210, encoder.Dialect300, encoder.Dialect302, encoder.Dialect311}
}
