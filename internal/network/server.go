package network

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tx2tx/tx2tx/internal/geometry"
	"github.com/tx2tx/tx2tx/internal/logger"
	"github.com/tx2tx/tx2tx/internal/state"
)

// InboundMessage pairs a received Message with the name of the client that
// sent it (empty until the client has completed its hello handshake).
type InboundMessage struct {
	Name string
	Msg  Message
}

// Server accepts TCP connections from clients and exposes thread-safe
// send/broadcast primitives per spec.md §5: the core tick goroutine is the
// only writer of ServerState, while accept and per-connection I/O run on
// their own goroutines, grounded on the teacher's ClientManager/acceptLoop
// split in internal/server/manager.go.
type Server struct {
	host string
	port int

	registry *state.Registry
	resolver func(name string) (geometry.Context, bool)

	listener net.Listener
	wg       sync.WaitGroup

	stopOnce sync.Once
	stop     chan struct{}

	inbound chan InboundMessage

	maxClients int
}

// conn wraps a net.Conn with a serializing write mutex so Send/Broadcast
// from the core goroutine never interleave with each other on the wire.
type conn struct {
	name string
	nc   net.Conn
	mu   sync.Mutex
}

func (c *conn) Close() error { return c.nc.Close() }

func (c *conn) write(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteMessage(c.nc, msg)
}

// NewServer builds a Server bound to host:port, registering accepted
// clients into registry once their hello handshake names them. resolver
// maps a configured client name to its bound position (typically
// config.Config.PositionToClient inverted at startup); a handshake from
// a name resolver rejects is refused per spec.md §7.
func NewServer(host string, port int, registry *state.Registry, maxClients int, resolver func(name string) (geometry.Context, bool)) *Server {
	return &Server{
		host:       host,
		port:       port,
		registry:   registry,
		resolver:   resolver,
		stop:       make(chan struct{}),
		inbound:    make(chan InboundMessage, 64),
		maxClients: maxClients,
	}
}

// Start begins listening and accepting connections in a background
// goroutine. It returns once the listener is bound so the caller can learn
// about bind failures synchronously (a fatal startup error per spec.md §7).
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("network: listen: %w", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop closes the listener and all client connections and waits for the
// accept/IO goroutines to exit.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.listener != nil {
			_ = s.listener.Close()
		}
		for _, name := range s.registry.Names() {
			if rec, ok := s.registry.Get(name); ok {
				_ = rec.Conn.Close()
			}
		}
		s.wg.Wait()
		close(s.inbound)
	})
}

// Address returns the bound listen address; empty before Start succeeds.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Inbound is the thread-safe queue the core tick drains at tick boundaries
// (spec.md §5: "messages received from clients... placed on a thread-safe
// queue drained by the core thread at tick boundaries").
func (s *Server) Inbound() <-chan InboundMessage {
	return s.inbound
}

// Send writes msg to the named client's connection synchronously, on the
// caller's goroutine; there is no outbound queue, so the caller blocks
// until the write completes or fails. Returns an error if the client is
// unknown or the write fails.
func (s *Server) Send(name string, msg Message) error {
	rec, ok := s.registry.Get(name)
	if !ok {
		return fmt.Errorf("network: unknown client %q", name)
	}
	c, ok := rec.Conn.(*conn)
	if !ok {
		return fmt.Errorf("network: client %q has no live connection", name)
	}
	if err := c.write(msg); err != nil {
		return fmt.Errorf("network: send to %q: %w", name, err)
	}
	return nil
}

// Broadcast sends msg to every connected client, logging (not failing) on
// a per-client write error.
func (s *Server) Broadcast(msg Message) {
	for _, name := range s.registry.Names() {
		if err := s.Send(name, msg); err != nil {
			logger.Debugf("network: broadcast to %s failed: %v", name, err)
		}
	}
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				select {
				case <-ctx.Done():
					return
				default:
					logger.Debugf("network: accept error: %v", err)
					continue
				}
			}
		}
		s.wg.Add(1)
		go s.handleConn(nc)
	}
}

// handleConn performs the hello handshake, registers the client (handling
// zombie eviction via registry.Register), then reads messages until EOF or
// error, pushing each onto the inbound queue.
func (s *Server) handleConn(nc net.Conn) {
	defer s.wg.Done()

	r := bufio.NewReader(nc)
	hello, err := ReadMessage(r)
	if err != nil || hello.MsgType != MsgHello {
		logger.Debugf("network: handshake failed from %s: %v", nc.RemoteAddr(), err)
		_ = nc.Close()
		return
	}

	c := &conn{name: hello.Name, nc: nc}

	if s.maxClients > 0 && len(s.registry.Names()) >= s.maxClients {
		if _, already := s.registry.Get(hello.Name); !already {
			logger.Warnf("network: rejecting %s, max_clients reached", hello.Name)
			_ = nc.Close()
			return
		}
	}

	position, err := s.clientPosition(hello.Name)
	if err != nil {
		logger.Warnf("network: %v", err)
		_ = nc.Close()
		return
	}

	evicted := s.registry.Register(&state.Record{Name: hello.Name, Position: position, Conn: c})
	if evicted != nil {
		logger.Infof("network: zombie eviction of %s", hello.Name)
	}

	_ = c.write(Message{MsgType: MsgHello, Name: "tx2tx-server", Version: ProtocolVersion})

	s.readLoop(c, r)
}

func (s *Server) clientPosition(name string) (geometry.Context, error) {
	if s.resolver == nil {
		return geometry.Center, fmt.Errorf("no position resolver installed for client %q", name)
	}
	pos, ok := s.resolver(name)
	if !ok {
		return geometry.Center, fmt.Errorf("client %q is not bound to a position in config", name)
	}
	return pos, nil
}

func (s *Server) readLoop(c *conn, r *bufio.Reader) {
	defer func() {
		rec := s.registry.Unregister(c.name)
		if rec != nil {
			s.inbound <- InboundMessage{Name: c.name, Msg: Message{MsgType: MsgError, ErrMessage: "disconnected"}}
		}
	}()

	for {
		_ = c.nc.SetReadDeadline(time.Now().Add(5 * time.Second))
		msg, err := ReadMessage(r)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		select {
		case s.inbound <- InboundMessage{Name: c.name, Msg: msg}:
		case <-s.stop:
			return
		}
	}
}
