package tokenfeed

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	rejectNotAuthenticated = "not authenticated"
	rejectWrongRun         = "wrong run"
	rejectUnauthorized     = "unauthorized"
)

// Server serves sample batches over TCP to federated clients. Transport
// authentication happens outside this type: the wrapping transport
// performs the public-key handshake and the server trusts the identity
// the client declares in its hello. Authorization, however, is checked
// here on every request against the current coordinator snapshot.
type Server struct {
	dataset *Dataset
	logger  *slog.Logger
	coord   atomic.Pointer[CoordinatorView]

	activeConns atomic.Int64
	bytesOut    atomic.Int64

	mu       sync.Mutex
	perIdent map[string]uint64 // sequences served per identity
}

// NewServer creates a server delegating retrieval to dataset and
// authorizing against coord.
func NewServer(dataset *Dataset, coord *CoordinatorView, logger *slog.Logger) *Server {
	s := &Server{
		dataset:  dataset,
		logger:   logger,
		perIdent: make(map[string]uint64),
	}
	s.coord.Store(coord)
	return s
}

// SetCoordinator publishes a new coordinator snapshot. In-flight
// requests keep the snapshot they already loaded; subsequent requests
// see the new one.
func (s *Server) SetCoordinator(coord *CoordinatorView) {
	s.coord.Store(coord)
}

// ServerStats is a point-in-time snapshot of the server's counters.
type ServerStats struct {
	ActiveConnections int64
	BytesOut          int64
	SequencesServed   map[string]uint64
}

// Stats snapshots the counters.
func (s *Server) Stats() ServerStats {
	s.mu.Lock()
	served := make(map[string]uint64, len(s.perIdent))
	for k, v := range s.perIdent {
		served[k] = v
	}
	s.mu.Unlock()
	return ServerStats{
		ActiveConnections: s.activeConns.Load(),
		BytesOut:          s.bytesOut.Load(),
		SequencesServed:   served,
	}
}

// Serve accepts connections on ln until ctx is cancelled. Each
// connection gets its own goroutine and state machine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &Error{Kind: KindNetwork, Message: err.Error()}
		}
		go s.handleConn(ctx, conn)
	}
}

// countingWriter tracks bytes written to a connection.
type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (cw countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n.Add(int64(n))
	return n, err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()
	s.activeConns.Add(1)
	defer func() {
		s.activeConns.Add(-1)
		conn.Close()
	}()

	logger := s.logger.With(
		slog.String("conn", connID),
		slog.String("remote", conn.RemoteAddr().String()),
	)
	logger.Debug("connection accepted")

	var (
		rd = bufio.NewReader(conn)
		wr = bufio.NewWriter(countingWriter{w: conn, n: &s.bytesOut})

		// Empty until a valid hello: the connection's declared identity.
		identity string
	)
	reply := func(m message) error {
		if err := writeFrame(wr, m); err != nil {
			return err
		}
		return wr.Flush()
	}

	for {
		msg, err := readFrame(rd)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				logger.Debug("connection closed")
			} else {
				logger.Warn("dropping connection", slog.Any("error", err))
			}
			return
		}

		switch m := msg.(type) {
		case helloMsg:
			coord := s.coord.Load()
			if m.runID != coord.RunID {
				logger.Warn(
					"hello for wrong run",
					slog.String("identity", m.identity),
					slog.String("run", m.runID),
				)
				// Stay in the loop unauthenticated rather than slamming
				// the connection shut: the client may have pipelined a
				// request behind the hello, and closing with unread data
				// can RST the rejection away before the client sees it.
				if err := reply(rejectMsg{reason: rejectWrongRun}); err != nil {
					return
				}
				continue
			}
			identity = m.identity
			logger.Debug("authenticated", slog.String("identity", identity))

		case numSequencesMsg:
			if identity == "" {
				reply(rejectMsg{reason: rejectNotAuthenticated})
				return
			}
			if err := reply(lengthMsg{n: s.dataset.NumSequences()}); err != nil {
				logger.Warn("writing length", slog.Any("error", err))
				return
			}

		case getSamplesMsg:
			if identity == "" {
				reply(rejectMsg{reason: rejectNotAuthenticated})
				return
			}
			coord := s.coord.Load()
			if !coord.Allows(identity, m.br) {
				logger.Warn(
					"unauthorized request",
					slog.String("identity", identity),
					slog.Uint64("start", m.br.Start),
					slog.Uint64("end", m.br.End),
				)
				if err := reply(rejectMsg{reason: rejectUnauthorized}); err != nil {
					return
				}
				continue
			}
			sequences, err := s.dataset.GetSamples(ctx, m.br)
			if err != nil {
				logger.Warn(
					"retrieval failed",
					slog.String("identity", identity),
					slog.Any("error", err),
				)
				reply(rejectMsg{reason: err.Error()})
				return
			}
			s.mu.Lock()
			s.perIdent[identity] += m.br.Width()
			s.mu.Unlock()
			if err := reply(samplesMsg{sequences: sequences}); err != nil {
				logger.Warn("writing samples", slog.Any("error", err))
				return
			}
			logger.Debug(
				"served batch",
				slog.String("identity", identity),
				slog.Uint64("start", m.br.Start),
				slog.Uint64("end", m.br.End),
			)

		default:
			logger.Warn("unexpected message from client")
			reply(rejectMsg{reason: "unexpected message"})
			return
		}
	}
}
