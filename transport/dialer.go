package transport

import (
	"sync"
	"time"

	"github.com/nawzhin/distgrid/grid"
	"github.com/nawzhin/distgrid/invocation"
	"github.com/nawzhin/distgrid/rlog"
	"github.com/nawzhin/distgrid/security"
	"github.com/nawzhin/distgrid/wireproto"
	zmq "github.com/pebbe/zmq4"
)

// dialerSendTimeout bounds how long a single zmq send may block the peer's
// exclusive owning goroutine, mirroring clusterrpc's client SetSndtimeo on
// its REQ channel. Receives are only attempted after the poller reports
// the socket readable, so no receive timeout is set.
const dialerSendTimeout = 2 * time.Second

// pollInterval is how often a peer's owning goroutine checks its outbound
// queue between blocking polls for inbound responses. clusterrpc's REQ
// client can afford a strict send-then-block-for-reply loop because each
// Client.Request call owns the channel for its own duration; this core
// dispatches many concurrent in-flight calls over one shared per-peer
// DEALER socket (each tagged by CallId instead of REQ/REP lockstep), so
// the owning goroutine has to interleave sends and receives itself.
const pollInterval = 5 * time.Millisecond

// outboundBacklog bounds how many not-yet-sent frames a peer connection
// will hold before Dialer.Send starts reporting failure, the same
// backpressure role clusterrpc's OUTSTANDING_REQUESTS_PER_THREAD plays on
// the server side.
const outboundBacklog = 256

// Dialer owns one DEALER socket per remote peer and routes decoded
// responses into a CallRegistry by CallId. It is the client half of this
// core's transport, grounded on clusterrpc's client_internal.go
// createChannel/connectToPeers/sendRequest, adapted from REQ/strict-reply
// to DEALER/async-correlated because Invocation Futures correlate
// responses by CallId rather than by blocking call order.
type Dialer struct {
	selfAddr grid.Address
	security *security.Manager
	registry *invocation.CallRegistry

	mu    sync.Mutex
	peers map[grid.Address]*peerConn
}

func NewDialer(self grid.Address, sec *security.Manager, registry *invocation.CallRegistry) *Dialer {
	return &Dialer{selfAddr: self, security: sec, registry: registry, peers: make(map[grid.Address]*peerConn)}
}

type peerConn struct {
	target grid.Address
	out    chan []byte
	closed chan struct{}
}

// Send marshals op into an Envelope and enqueues it for delivery to
// target. It returns false if the payload could not be built or the
// peer's outbound queue is full — both surfaced by the invocation engine
// as a retryable dispatch failure, never as a remote rejection.
func (d *Dialer) Send(op grid.Operation, target grid.Address) bool {
	env, err := buildEnvelope(op)
	if err != nil {
		rlog.Errorf("transport: could not build envelope for call %d: %v", op.CallID(), err)
		return false
	}
	b, err := wireproto.Marshal(env)
	if err != nil {
		rlog.Errorf("transport: could not marshal envelope for call %d: %v", op.CallID(), err)
		return false
	}

	pc := d.peerFor(target)
	select {
	case pc.out <- b:
		return true
	default:
		rlog.Warnf("transport: outbound backlog to %s full, dropping call %d", target, op.CallID())
		return false
	}
}

func buildEnvelope(op grid.Operation) (*wireproto.Envelope, error) {
	var payload []byte
	if pm, ok := op.(grid.PayloadMarshaler); ok {
		p, err := pm.MarshalPayload()
		if err != nil {
			return nil, err
		}
		payload = p
	}
	svc := op.ServiceName()
	pid := op.PartitionID()
	ri := op.ReplicaIndex()
	caller := op.CallerAddress().String()
	callID := op.CallID()
	invTime := op.InvocationTime()
	timeout := op.CallTimeout()
	return &wireproto.Envelope{
		ServiceName:    &svc,
		PartitionId:    &pid,
		ReplicaIndex:   &ri,
		CallerAddress:  &caller,
		CallId:         &callID,
		InvocationTime: &invTime,
		CallTimeout:    &timeout,
		Payload:        payload,
	}, nil
}

func (d *Dialer) peerFor(target grid.Address) *peerConn {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pc, ok := d.peers[target]; ok {
		return pc
	}
	pc := &peerConn{target: target, out: make(chan []byte, outboundBacklog), closed: make(chan struct{})}
	d.peers[target] = pc
	go d.run(pc)
	return pc
}

// run is the exclusive owner of one DEALER socket for its lifetime, the
// way every zmq.Socket in this stack is confined to a single goroutine.
// It interleaves draining the outbound queue with polling for inbound
// responses.
func (d *Dialer) run(pc *peerConn) {
	sock, err := zmq.NewSocket(zmq.DEALER)
	if err != nil {
		rlog.Errorf("transport: could not create DEALER socket for %s: %v", pc.target, err)
		return
	}
	defer sock.Close()

	sock.SetIpv6(true)
	sock.SetReconnectIvl(100 * time.Millisecond)
	sock.SetSndtimeo(dialerSendTimeout)
	sock.SetLinger(0)

	if d.security != nil {
		// Every node in a secured cluster is provisioned with the same
		// shared keypair (distributed out of band via gridkeygen), so a
		// node's own public key also serves as the server key every peer's
		// ROUTER presents. This trades per-node CURVE identity for a
		// single pre-shared cluster secret, the simplest model that still
		// exercises CURVE end to end for a cluster of otherwise
		// interchangeable peers.
		if err := d.security.ApplyToClientSocket(sock, d.security.PublicKey()); err != nil {
			rlog.Warnf("transport: could not secure connection to %s: %v", pc.target, err)
		}
	}

	addr := "tcp://" + pc.target.String()
	if err := sock.Connect(addr); err != nil {
		rlog.Errorf("transport: could not connect to %s: %v", pc.target, err)
		return
	}

	poller := zmq.NewPoller()
	poller.Add(sock, zmq.POLLIN)

	for {
		select {
		case b := <-pc.out:
			if _, err := sock.SendBytes(b, 0); err != nil {
				rlog.Warnf("transport: send to %s failed: %v", pc.target, err)
			}
		case <-pc.closed:
			return
		default:
		}

		polled, err := poller.Poll(pollInterval)
		if err != nil {
			rlog.Warnf("transport: poll on connection to %s failed: %v", pc.target, err)
			continue
		}
		if len(polled) == 0 {
			continue
		}
		b, err := sock.RecvBytes(0)
		if err != nil {
			rlog.Warnf("transport: recv from %s failed: %v", pc.target, err)
			continue
		}
		d.handleResponse(b)
	}
}

func (d *Dialer) handleResponse(b []byte) {
	env := &wireproto.Envelope{}
	if err := wireproto.Unmarshal(b, env); err != nil {
		rlog.Errorf("transport: could not decode response envelope: %v", err)
		return
	}
	resp := &wireproto.Response{}
	if err := wireproto.UnmarshalResponse(env.GetPayload(), resp); err != nil {
		rlog.Errorf("transport: could not decode response payload for call %d: %v", env.GetCallId(), err)
		return
	}

	result := decodeResult(env.GetServiceName(), resp)
	d.registry.Route(env.GetCallId(), result)
}

func decodeResult(serviceName string, resp *wireproto.Response) interface{} {
	switch resp.GetStatus() {
	case wireproto.StatusRetryable:
		return &invocation.RetryableError{Cause: retryCause(resp.GetErrorMessage())}
	case wireproto.StatusError:
		return invocation.WrapExecutionError(retryCause(resp.GetErrorMessage()))
	default:
		if serviceName == invocation.LivenessServiceName {
			executing, err := wireproto.UnmarshalIsStillExecutingResponse(resp.GetPayload())
			if err != nil {
				rlog.Errorf("transport: could not decode liveness response: %v", err)
				return false
			}
			return executing
		}
		return resp.GetPayload()
	}
}

type remoteError string

func (e remoteError) Error() string { return string(e) }

func retryCause(msg string) error {
	if msg == "" {
		msg = "remote error"
	}
	return remoteError(msg)
}

// Stop tears down every peer connection this Dialer owns.
func (d *Dialer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, pc := range d.peers {
		close(pc.closed)
	}
}
