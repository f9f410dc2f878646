package server

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"sysutils-mcp/internal/dispatch"
	"sysutils-mcp/internal/jsonrpc"
	"sysutils-mcp/internal/mcp"
	"sysutils-mcp/internal/schema"
	"sysutils-mcp/internal/telemetry"
	"sysutils-mcp/internal/tools"
	"sysutils-mcp/internal/tools/greeting"
	"sysutils-mcp/internal/tools/sysinfo"
)

// ErrNotReady is returned by Run when the server is not in StateReady.
var ErrNotReady = errors.New("server: not ready to serve")

// Option configures a Server.
type Option func(*options)

type options struct {
	register []func(*tools.Registry) error
	metrics  *telemetry.Metrics
}

// WithTools registers additional tools after the built-in ones.
func WithTools(register func(*tools.Registry) error) Option {
	return func(o *options) {
		o.register = append(o.register, register)
	}
}

// WithMetrics records into m instead of a private metrics set.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Server serves one MCP connection over a line-delimited stream.
type Server struct {
	cfg        Config
	logger     zerolog.Logger
	catalog    *tools.Catalog
	dispatcher telemetry.Dispatcher
	handler    *mcp.Handler
	metrics    *telemetry.Metrics

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
}

// New populates and freezes the tool catalog. The returned server is Ready.
func New(cfg Config, logger zerolog.Logger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = telemetry.NewMetrics()
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger.With().Str("component", "server").Logger(),
		metrics: o.metrics,
		stop:    make(chan struct{}),
	}
	s.state.Store(int32(StateUninitialized))

	registry := tools.NewRegistry(schema.Options{AllowAdditionalProperties: cfg.AllowUnknownArguments}, logger)
	register := append([]func(*tools.Registry) error{
		greeting.Register,
		func(r *tools.Registry) error { return sysinfo.Register(r, sysinfo.NewCollector(logger)) },
	}, o.register...)
	for _, fn := range register {
		if err := fn(registry); err != nil {
			return nil, errors.Wrap(err, "register tools")
		}
	}

	s.catalog = registry.Freeze()
	s.dispatcher = telemetry.NewDispatcherWrapper(dispatch.New(s.catalog, logger), s.metrics)
	s.handler = mcp.NewHandler(mcp.Info{
		Name:         cfg.Name,
		Version:      cfg.Version,
		Instructions: cfg.Instructions,
	}, s.catalog, s.dispatcher, logger, mcp.WithObserver(s.metrics))

	s.setState(StateReady)
	s.logger.Info().Int("tools", s.catalog.Len()).Msg("Tool catalog ready")
	return s, nil
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	s.logger.Debug().Stringer("from", prev).Stringer("to", st).Msg("State transition")
}

// Catalog returns the frozen tool catalog.
func (s *Server) Catalog() *tools.Catalog {
	return s.catalog
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *telemetry.Metrics {
	return s.metrics
}

// Session returns the connection state negotiated so far.
func (s *Server) Session() mcp.Session {
	return s.handler.Session()
}

// Shutdown asks Run to stop reading. It does not wait.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run serves requests read from r and writes responses to w until input
// ends, ctx is cancelled, Shutdown is called or the transport fails.
// Clean endings return nil. Framing, read and write failures are returned.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	if !s.state.CompareAndSwap(int32(StateReady), int32(StateServing)) {
		return errors.Wrapf(ErrNotReady, "state %s", s.State())
	}
	started := time.Now()
	sess := s.handler.Session()
	log := s.logger.With().Str("session_id", sess.ID).Logger()
	log.Info().Int("max_in_flight", s.cfg.MaxInFlight).Msg("Serving")
	s.metrics.RecordSessionOpened()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	// Handlers outlive connection cancellation; late results are discarded.
	dispatchCtx := context.WithoutCancel(ctx)

	out := make(chan *jsonrpc.Response)
	closing := make(chan struct{})
	writeFailed := make(chan error, 1)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(log, jsonrpc.NewEncoder(w), out, closing, writeFailed)
	}()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	stopRead := make(chan struct{})
	go s.readLoop(jsonrpc.NewDecoder(r, s.cfg.MaxMessageBytes), lines, readErr, stopRead)

	sem := semaphore.NewWeighted(int64(s.cfg.MaxInFlight))
	var inflight errgroup.Group

	var runErr error
	reason := ""
loop:
	for {
		select {
		case <-loopCtx.Done():
			reason = "shutdown requested"
			if ctx.Err() != nil {
				reason = "context cancelled"
			}
			break loop
		case err := <-writeFailed:
			reason = "write failure"
			runErr = err
			break loop
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				reason = "end of input"
			} else {
				reason = "read failure"
				runErr = err
			}
			break loop
		case line := <-lines:
			if err := sem.Acquire(loopCtx, 1); err != nil {
				reason = "shutdown requested"
				break loop
			}
			inflight.Go(func() error {
				defer sem.Release(1)
				resp := s.handler.HandleMessage(dispatchCtx, line)
				if resp == nil {
					return nil
				}
				select {
				case out <- resp:
				case <-closing:
					log.Warn().Interface("id", resp.ID).Msg("Discarding response after shutdown")
				}
				return nil
			})
		}
	}
	close(stopRead)

	s.setState(StateShuttingDown)
	if runErr != nil {
		log.Error().Err(runErr).Str("reason", reason).Msg("Shutting down")
	} else {
		log.Info().Str("reason", reason).Msg("Shutting down")
	}

	drained := make(chan struct{})
	go func() {
		_ = inflight.Wait()
		close(drained)
	}()

	expired := make(chan struct{})
	timer := time.AfterFunc(s.cfg.ShutdownGrace, func() { close(expired) })
	defer timer.Stop()

	select {
	case <-drained:
	case <-expired:
		log.Warn().Dur("grace", s.cfg.ShutdownGrace).Msg("Shutdown grace period expired with calls in flight")
	}
	close(closing)
	<-writerDone

	if runErr == nil {
		select {
		case err := <-writeFailed:
			runErr = err
		default:
		}
	}

	s.setState(StateTerminated)
	s.metrics.RecordSessionClosed(time.Since(started))
	log.Info().Dur("uptime", time.Since(started)).Msg("Server terminated")
	return runErr
}

// readLoop forwards lines until the decoder fails. It may remain blocked in
// a read after Run returns.
func (s *Server) readLoop(dec *jsonrpc.Decoder, lines chan<- []byte, readErr chan<- error, stop <-chan struct{}) {
	for {
		line, err := dec.Next()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case lines <- line:
		case <-stop:
			return
		}
	}
}

// writeLoop is the only writer on the stream. After a failed write it keeps
// draining so senders never block. It returns once closing is closed and any
// write in progress has finished.
func (s *Server) writeLoop(log zerolog.Logger, enc *jsonrpc.Encoder, out <-chan *jsonrpc.Response, closing <-chan struct{}, writeFailed chan<- error) {
	failed := false
	for {
		select {
		case <-closing:
			return
		default:
		}
		select {
		case resp := <-out:
			if failed {
				log.Warn().Interface("id", resp.ID).Msg("Discarding response after write failure")
				continue
			}
			if err := enc.Encode(resp); err != nil {
				log.Error().Err(err).Interface("id", resp.ID).Msg("Failed to write response")
				// Unencodable results are not transport faults.
				if errors.Is(err, jsonrpc.ErrMarshal) {
					continue
				}
				failed = true
				writeFailed <- err
			}
		case <-closing:
			return
		}
	}
}
