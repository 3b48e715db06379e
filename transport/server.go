package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/nawzhin/distgrid/grid"
	"github.com/nawzhin/distgrid/invocation"
	"github.com/nawzhin/distgrid/rlog"
	"github.com/nawzhin/distgrid/security"
	"github.com/nawzhin/distgrid/wireproto"
	zmq "github.com/pebbe/zmq4"
)

// Handler answers one inbound operation for a registered service name and
// returns either a successful result payload or a retryable/terminal
// error. Unlike clusterrpc's two-level service+endpoint registration, this
// core dispatches on service name alone: grid.Operation exposes no
// endpoint concept, only ServiceName.
type Handler func(ctx context.Context, env *wireproto.Envelope) (result []byte, retry bool, err error)

// outboundReply is one reply a worker goroutine hands back to acceptLoop
// for sending, since acceptLoop alone owns srv.sock.
type outboundReply struct {
	identity []byte
	payload  []byte
	callID   int64
}

// Server owns one ROUTER socket, bound once and read/written exclusively
// by its own networking goroutine — the zmq thread-confinement rule this
// whole transport is built around. Decoded requests are handed to a
// bounded worker pool so a slow Handler never blocks the socket goroutine,
// the same separation of concerns clusterrpc's frontend router /
// worker-thread split achieves with an inproc broker; this core replaces
// that broker with the localPool's bounded queue because there is exactly
// one listening socket to shed against, not several.
type Server struct {
	laddr string
	port  uint16

	services grid.OperationService

	mu       sync.RWMutex
	handlers map[string]Handler

	lameduck bool
	loadshed bool

	sock  *zmq.Socket
	pool  *localPool
	outCh chan outboundReply

	security *security.Manager

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewServer creates a Server that will bind laddr:port once Start is
// called. workerThreads sizes the local dispatch pool; backlog bounds how
// many decoded-but-not-yet-handled requests may queue before Start begins
// shedding load — a liveness probe must always be answered promptly, so
// shedding is strongly preferred over queueing indefinitely.
func NewServer(laddr string, port uint16, workerThreads, backlog int, sec *security.Manager) *Server {
	srv := &Server{
		laddr:    laddr,
		port:     port,
		handlers: make(map[string]Handler),
		pool:     newLocalPool(workerThreads, backlog),
		outCh:    make(chan outboundReply, outboundBacklog),
		security: sec,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	srv.RegisterHandler(invocation.LivenessServiceName, srv.handleLiveness)
	return srv
}

// RegisterHandler installs h for serviceName, overwriting any previous
// registration the way clusterrpc's RegisterHandler refuses a duplicate —
// except this core's single-key namespace makes last-registration-wins
// the simpler, equally defensible choice for re-registration during
// testing.
func (srv *Server) RegisterHandler(serviceName string, h Handler) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.handlers[serviceName] = h
}

// SetServices attaches the OperationService this server's built-in
// liveness handler consults. It must be called before Start.
func (srv *Server) SetServices(s grid.OperationService) {
	srv.services = s
}

// SetLameduck records this node's lameduck flag, named after clusterrpc's
// SetLameduck. The flag is only stored: request dispatch does not consult
// it and nothing advertises it to peers.
func (srv *Server) SetLameduck(v bool) {
	srv.mu.Lock()
	srv.lameduck = v
	srv.mu.Unlock()
}

// SetLoadshed stops this node from accepting any further requests at all
// (existing in-flight work is unaffected), the harder-stop sibling of
// SetLameduck.
func (srv *Server) SetLoadshed(v bool) {
	srv.mu.Lock()
	srv.loadshed = v
	srv.mu.Unlock()
}

// Start binds the ROUTER socket and launches the exclusive networking
// goroutine. It returns once the bind succeeds or fails; the accept loop
// itself runs in the background.
func (srv *Server) Start() error {
	sock, err := zmq.NewSocket(zmq.ROUTER)
	if err != nil {
		return err
	}
	sock.SetIpv6(true)
	sock.SetRouterMandatory(1)

	if srv.security != nil {
		if err := srv.security.ApplyToServerSocket(sock); err != nil {
			sock.Close()
			return err
		}
	}

	addr := fmt.Sprintf("tcp://%s:%d", srv.laddr, srv.port)
	if err := sock.Bind(addr); err != nil {
		sock.Close()
		return err
	}
	srv.sock = sock

	go srv.acceptLoop()
	return nil
}

// acceptLoop is the sole reader and writer of srv.sock for its entire
// lifetime: worker goroutines never touch the socket directly, they hand
// replies to outCh and this loop alone drains it, the same
// one-goroutine-per-socket discipline Dialer.run uses on the client side.
func (srv *Server) acceptLoop() {
	defer close(srv.doneCh)

	poller := zmq.NewPoller()
	poller.Add(srv.sock, zmq.POLLIN)

	for {
		select {
		case <-srv.stopCh:
			return
		case out := <-srv.outCh:
			srv.writeReply(out)
			continue
		default:
		}

		polled, err := poller.Poll(pollInterval)
		if err != nil {
			rlog.Errorf("transport: server poll failed: %v", err)
			continue
		}
		if len(polled) == 0 {
			continue
		}

		frames, err := srv.sock.RecvMessageBytes(0)
		if err != nil {
			rlog.Warnf("transport: server recv failed: %v", err)
			continue
		}
		// ROUTER frames: [identity, ...empty delimiters..., payload].
		if len(frames) < 2 {
			continue
		}
		identity := frames[0]
		payload := frames[len(frames)-1]

		srv.dispatch(identity, payload)
	}
}

func (srv *Server) dispatch(identity, payload []byte) {
	env := &wireproto.Envelope{}
	if err := wireproto.Unmarshal(payload, env); err != nil {
		rlog.Errorf("transport: could not decode inbound envelope: %v", err)
		return
	}

	srv.mu.RLock()
	shedding := srv.loadshed
	handler, ok := srv.handlers[env.GetServiceName()]
	srv.mu.RUnlock()

	if shedding {
		srv.reply(identity, env, wireproto.NewRetryableResponse("node is shedding load"))
		return
	}
	if !ok {
		srv.reply(identity, env, wireproto.NewErrorResponse("unknown service: "+env.GetServiceName()))
		return
	}

	submitted := srv.pool.Submit(func() {
		result, retry, err := handler(context.Background(), env)
		srv.replyFromHandler(identity, env, result, retry, err)
	})
	if !submitted {
		srv.reply(identity, env, wireproto.NewRetryableResponse("node overloaded"))
	}
}

func (srv *Server) replyFromHandler(identity []byte, env *wireproto.Envelope, result []byte, retry bool, err error) {
	switch {
	case err != nil && retry:
		srv.reply(identity, env, wireproto.NewRetryableResponse(err.Error()))
	case err != nil:
		srv.reply(identity, env, wireproto.NewErrorResponse(err.Error()))
	default:
		srv.reply(identity, env, wireproto.NewOKResponse(result))
	}
}

func (srv *Server) reply(identity []byte, env *wireproto.Envelope, resp *wireproto.Response) {
	respPayload, err := wireproto.MarshalResponse(resp)
	if err != nil {
		rlog.Errorf("transport: could not marshal response for call %d: %v", env.GetCallId(), err)
		return
	}
	callID := env.GetCallId()
	svc := env.GetServiceName()
	out := &wireproto.Envelope{CallId: &callID, ServiceName: &svc, Payload: respPayload}
	b, err := wireproto.Marshal(out)
	if err != nil {
		rlog.Errorf("transport: could not marshal response envelope for call %d: %v", env.GetCallId(), err)
		return
	}

	// dispatch's own shed/unknown-service paths and worker-pool handler
	// completions both reach here from whatever goroutine ran them; the
	// reply itself is only ever written by acceptLoop, so it's enqueued
	// rather than sent directly.
	select {
	case srv.outCh <- outboundReply{identity: identity, payload: b, callID: callID}:
	default:
		rlog.Warnf("transport: reply backlog full, dropping reply to call %d", callID)
	}
}

// writeReply is called only from acceptLoop, the sole owner of srv.sock.
func (srv *Server) writeReply(out outboundReply) {
	if srv.sock == nil {
		return
	}
	if _, err := srv.sock.SendBytes(out.identity, zmq.SNDMORE); err != nil {
		rlog.Warnf("transport: could not send identity frame for call %d: %v", out.callID, err)
		return
	}
	if _, err := srv.sock.SendBytes([]byte{}, zmq.SNDMORE); err != nil {
		rlog.Warnf("transport: could not send delimiter frame for call %d: %v", out.callID, err)
		return
	}
	if _, err := srv.sock.SendBytes(out.payload, 0); err != nil {
		rlog.Warnf("transport: could not send reply payload for call %d: %v", out.callID, err)
	}
}

func (srv *Server) handleLiveness(ctx context.Context, env *wireproto.Envelope) ([]byte, bool, error) {
	callID, err := wireproto.UnmarshalIsStillExecuting(env.GetPayload())
	if err != nil {
		return nil, false, err
	}
	executing := srv.services != nil && srv.services.IsOperationExecuting(ctx, parseAddress(env.GetCallerAddress()), callID)
	payload, err := wireproto.MarshalIsStillExecutingResponse(executing)
	if err != nil {
		return nil, false, err
	}
	return payload, false, nil
}

func parseAddress(s string) grid.Address {
	var host string
	var port uint16
	fmt.Sscanf(s, "%[^:]:%d", &host, &port)
	return grid.Address{Host: host, Port: port}
}

// Stop halts the accept loop and the local worker pool. It does not close
// the underlying socket; call Close for that once Stop has returned.
func (srv *Server) Stop() {
	close(srv.stopCh)
	<-srv.doneCh
	srv.pool.Stop()
}

// Close releases the ROUTER socket. The server may not be restarted after
// Close.
func (srv *Server) Close() {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.sock != nil {
		srv.sock.Close()
		srv.sock = nil
	}
}
