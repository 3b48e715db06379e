// Package security manages ZeroMQ CURVE keypairs for a grid node,
// adapted from clusterrpc's securitymanager packages. It is disabled by
// default: a node runs in the open unless a Manager is equipped with a
// keypair (NewManager or SetKeys) and handed to the transport layer.
package security

import (
	"errors"
	"io/ioutil"
	"strings"

	"github.com/pebbe/zmq4"
)

// domain is the ZAP authentication domain used for every grid node; there
// is only ever one CURVE-secured listener per process, so a static string
// is fine (mirrors clusterrpc's own static "clusterrpc.srv" domain).
const domain = "distgrid.node"

// DoNotPersist can be used as the private file name with WriteKeys to write
// only the public half of a keypair to disk.
const DoNotPersist = "___donotwrite_key_to_file"

// Manager holds this node's own CURVE keypair plus the set of peer public
// keys it is willing to talk to. A nil *Manager is valid everywhere it is
// accepted and disables security entirely, the same way a nil
// *clusterrpc ServerSecurityManager does.
type Manager struct {
	publicKey, privateKey string

	allowedPeerKeys []string
}

// NewManager generates a fresh CURVE keypair.
func NewManager() (*Manager, error) {
	pub, priv, err := zmq4.NewCurveKeypair()
	if err != nil {
		return nil, err
	}
	return &Manager{publicKey: pub, privateKey: priv}, nil
}

// PublicKey returns this node's Z85-encoded public key, handed out to
// peers that need to address this node as a server.
func (m *Manager) PublicKey() string {
	if m == nil {
		return ""
	}
	return m.publicKey
}

// SetKeys installs an already-generated keypair, e.g. loaded from config.
func (m *Manager) SetKeys(public, private string) {
	m.publicKey, m.privateKey = public, private
}

// AllowPeer whitelists a peer's public key for CURVE authentication. An
// empty whitelist means "accept any CURVE-authenticated peer", matching
// zmq4.CURVE_ALLOW_ANY.
func (m *Manager) AllowPeer(publicKey string) {
	m.allowedPeerKeys = append(m.allowedPeerKeys, publicKey)
}

// ApplyToServerSocket equips a ROUTER socket with CURVE, iron-house style
// (ported from securitymanager.ApplyToServerSocket). Safe to call with a
// nil Manager, in which case it is a no-op and the socket stays plaintext.
func (m *Manager) ApplyToServerSocket(sock *zmq4.Socket) error {
	if m == nil {
		return nil
	}
	if m.publicKey == "" || m.privateKey == "" {
		return errors.New("security: manager has no keypair")
	}

	zmq4.AuthStart()

	if len(m.allowedPeerKeys) > 0 {
		zmq4.AuthCurveAdd(domain, m.allowedPeerKeys...)
	} else {
		zmq4.AuthCurveAdd(domain, zmq4.CURVE_ALLOW_ANY)
	}

	return sock.ServerAuthCurve(domain, m.privateKey)
}

// ApplyToClientSocket equips a client-side (DEALER) socket with CURVE given the server's
// public key it is dialing. Safe to call with a nil Manager.
func (m *Manager) ApplyToClientSocket(sock *zmq4.Socket, serverPublicKey string) error {
	if m == nil {
		return nil
	}
	if m.publicKey == "" || m.privateKey == "" {
		return errors.New("security: manager has no keypair")
	}
	if serverPublicKey == "" {
		return errors.New("security: no server public key configured")
	}
	if err := sock.SetCurveServerkey(serverPublicKey); err != nil {
		return err
	}
	if err := sock.SetCurvePublickey(m.publicKey); err != nil {
		return err
	}
	return sock.SetCurveSecretkey(m.privateKey)
}

// StopAuth tears down the background ZAP authenticator thread ZeroMQ
// started on ApplyToServerSocket's behalf.
func StopAuth() {
	zmq4.AuthStop()
}

// WriteKeys persists the public/private halves of m to two files. Passing
// DoNotPersist as privateFile writes only the public key and never the
// private key.
func (m *Manager) WriteKeys(publicFile, privateFile string) error {
	if err := ioutil.WriteFile(publicFile, []byte(m.publicKey), 0644); err != nil {
		return err
	}
	if privateFile == DoNotPersist {
		return nil
	}
	return ioutil.WriteFile(privateFile, []byte(m.privateKey), 0600)
}

// LoadPeerPublicKey reads a Z85 public key previously written by
// WriteKeys, trimming surrounding whitespace, and registers it as an
// allowed peer.
func (m *Manager) LoadPeerPublicKey(file string) error {
	b, err := ioutil.ReadFile(file)
	if err != nil {
		return err
	}
	key := strings.TrimSpace(string(b))
	m.AllowPeer(key)
	return nil
}
