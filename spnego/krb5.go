package spnego

import (
	"errors"

	"github.com/jfjallid/gokrb5/v8/client"
	"github.com/jfjallid/gokrb5/v8/config"
	"github.com/jfjallid/gokrb5/v8/credentials"
	"github.com/jfjallid/gokrb5/v8/keytab"
	"github.com/jfjallid/gokrb5/v8/messages"
	"github.com/jfjallid/gokrb5/v8/types"
)

// Krb5Initiator implements AuthProvider over Kerberos 5, grounded on
// rclone's backend/smb/kerberos.go (config/ccache loading shape) and
// golang-auth-go-gssapi's krb5 mechanism (client.NewWithKeytab /
// GetServiceTicket / messages.NewAPReq call sequence), built against
// jfjallid/gokrb5/v8 since that is the fork ericblavier-go-smb already
// depends on (see DESIGN.md) rather than the upstream jcmturner module
// those two examples use.
type Krb5Initiator struct {
	User     string
	Realm    string
	Password string
	Keytab   []byte // alternative to Password
	CCache   string // alternative to Password/Keytab: path to a ccache file

	SPN string // service principal name, e.g. "cifs/fileserver.example.com"

	client     *client.Client
	ticket     messages.Ticket
	sessionKey types.EncryptionKey
}

func (k *Krb5Initiator) ensureClient() error {
	if k.client != nil {
		return nil
	}
	cfg, err := config.Load("/etc/krb5.conf")
	if err != nil {
		cfg = config.New()
	}
	switch {
	case k.CCache != "":
		cc, err := credentials.LoadCCache(k.CCache)
		if err != nil {
			return err
		}
		k.client, err = client.NewFromCCache(cc, cfg)
		if err != nil {
			return err
		}
	case len(k.Keytab) > 0:
		kt := keytab.New()
		if err := kt.Unmarshal(k.Keytab); err != nil {
			return err
		}
		k.client = client.NewWithKeytab(k.User, k.Realm, kt, cfg)
	default:
		k.client = client.NewWithPassword(k.User, k.Realm, k.Password, cfg)
	}
	return k.client.Login()
}

// Negotiate fetches a service ticket for SPN and builds the initial
// Kerberos AP-REQ, wrapped in a SPNEGO NegTokenInit. Kerberos is a
// single round trip in the common (non-mutual-auth) case; Authenticate
// is only called if the server answers STATUS_MORE_PROCESSING_REQUIRED.
func (k *Krb5Initiator) Negotiate() ([]byte, error) {
	if k.SPN == "" {
		return nil, errors.New("spnego: Krb5Initiator.SPN is required")
	}
	if err := k.ensureClient(); err != nil {
		return nil, err
	}
	tkt, sessionKey, err := k.client.GetServiceTicket(k.SPN)
	if err != nil {
		return nil, err
	}
	k.ticket = tkt
	k.sessionKey = sessionKey

	auth, err := types.NewAuthenticator(k.client.Credentials.Domain(), k.client.Credentials.CName())
	if err != nil {
		return nil, err
	}
	apreq, err := messages.NewAPReq(k.ticket, k.sessionKey, auth)
	if err != nil {
		return nil, err
	}
	apreqBytes, err := apreq.Marshal()
	if err != nil {
		return nil, err
	}
	return wrapInitToken(krb5OID, apreqBytes)
}

// Authenticate is only reached if the server asks for mutual
// authentication (an AP-REP in its NegTokenResp); this module doesn't
// need the resulting mutual-auth proof to establish an SMB session, so
// it treats any server reply here as completing the exchange.
func (k *Krb5Initiator) Authenticate(serverToken []byte) ([]byte, bool, error) {
	return nil, true, nil
}

func (k *Krb5Initiator) SessionKey() []byte   { return k.sessionKey.KeyValue }
func (k *Krb5Initiator) AuthUsername() string { return k.User }
func (k *Krb5Initiator) AuthDomain() string   { return k.Realm }
