// Package gateway serves the two gRPC streams a kritor core opens: the
// reverse stream that carries commands and their responses, and the event
// stream that carries inbound events.
//
// The reverse stream owns the Bot. The first reverse stream for an account
// creates and registers it; a second concurrent one is rejected. The event
// stream only looks the Bot up, waiting for it when events arrive first.
package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/ggoodman/kritor-gateway/bot"
	"github.com/ggoodman/kritor-gateway/dispatch"
	"github.com/ggoodman/kritor-gateway/internal/logctx"
	"github.com/ggoodman/kritor-gateway/internal/wire"
	"github.com/ggoodman/kritor-gateway/kritor"
	"github.com/ggoodman/kritor-gateway/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	_ wire.EventServiceServer   = (*Server)(nil)
	_ wire.ReverseServiceServer = (*Server)(nil)
)

const (
	streamReverse = "reverse"
	streamEvent   = "event"
)

// Connection results recorded in metrics.
const (
	resultAccepted  = "accepted"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records connection outcomes and ingress counts in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithBotOptions appends options applied to every Bot the Server creates.
func WithBotOptions(opts ...bot.Option) Option {
	return func(s *Server) { s.botOpts = append(s.botOpts, opts...) }
}

// WithWarmup toggles fetching the account and rosters after a core
// connects. It is on by default.
func WithWarmup(enabled bool) Option {
	return func(s *Server) { s.warmup = enabled }
}

// Server implements the kritor EventService and ReverseService.
type Server struct {
	sessions   *bot.Registry
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
	metrics    *metrics.Metrics
	botOpts    []bot.Option
	warmup     bool
}

func New(sessions *bot.Registry, dispatcher *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		sessions:   sessions,
		dispatcher: dispatcher,
		log:        slog.Default(),
		warmup:     true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs both services on r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	wire.RegisterEventServiceServer(r, s)
	wire.RegisterReverseServiceServer(r, s)
}

// ReverseStream runs the command stream for one core until either side
// ends it. On return the Bot is closed, its pending commands resolve with
// bot.ErrNotConnected and it is removed from the registry.
func (s *Server) ReverseStream(stream wire.ReverseStream) error {
	ctx := stream.Context()
	id, err := wire.IdentityFromContext(ctx)
	if err != nil {
		s.metrics.Connection(streamReverse, resultRejected)
		s.log.WarnContext(ctx, "gateway.reverse.rejected", slog.String("err", err.Error()))
		return status.Error(codes.Unauthenticated, err.Error())
	}

	var attachErr error
	b, created := s.sessions.GetOrCreate(id.UID, func() *bot.Bot {
		opts := append([]bot.Option{bot.WithLogger(s.log)}, s.botOpts...)
		nb := bot.New(bot.Account{UID: id.UID, UIN: id.UIN, Version: id.Version}, opts...)
		// Dispatch loops live as long as the Bot; closing it ends them.
		attachErr = s.dispatcher.Attach(context.WithoutCancel(ctx), nb)
		return nb
	})
	if !created {
		s.metrics.Connection(streamReverse, resultDuplicate)
		s.log.WarnContext(ctx, "gateway.reverse.duplicate",
			slog.String("account", id.UID),
			slog.String("existing_conn", b.ConnectionID()),
		)
		return status.Errorf(codes.AlreadyExists, "account %q is already connected", id.UID)
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		AccountID:    id.UID,
		UIN:          id.UIN,
		ConnectionID: b.ConnectionID(),
		Version:      id.Version,
	})
	defer func() {
		b.Close(bot.ErrNotConnected)
		s.sessions.Detach(b)
	}()
	if attachErr != nil {
		s.metrics.Connection(streamReverse, resultRejected)
		s.log.ErrorContext(ctx, "gateway.reverse.attach.fail", slog.String("err", attachErr.Error()))
		return status.Error(codes.Internal, attachErr.Error())
	}

	s.metrics.Connection(streamReverse, resultAccepted)
	closed := s.metrics.StreamOpened(streamReverse)
	defer closed()
	s.log.InfoContext(ctx, "gateway.reverse.connected")

	if s.warmup {
		go func() {
			if err := b.Init(ctx); err != nil {
				s.log.WarnContext(ctx, "gateway.warmup.fail", slog.String("err", err.Error()))
			}
		}()
	}

	go func() {
		err := s.receive(ctx, b, stream)
		b.Close(err)
	}()

	err = s.pump(ctx, b, stream)
	if err != nil {
		s.log.WarnContext(ctx, "gateway.reverse.disconnected", slog.String("err", err.Error()))
		return err
	}
	s.log.InfoContext(ctx, "gateway.reverse.disconnected")
	return nil
}

// pump writes queued commands to the core until the Bot closes, the stream
// context ends or a write fails.
func (s *Server) pump(ctx context.Context, b *bot.Bot, stream wire.ReverseStream) error {
	for {
		select {
		case req := <-b.Outbound():
			if err := stream.Send(req); err != nil {
				return err
			}
		case <-b.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// receive hands every response from the core to its waiter. It returns nil
// when the core half-closes the stream.
func (s *Server) receive(ctx context.Context, b *bot.Bot, stream wire.ReverseStream) error {
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		b.CompleteResponse(ctx, resp)
	}
}

// RegisterPassiveListener ingests events from one core. Events may arrive
// before the reverse stream has registered the Bot; the first event then
// waits for it. When the core closes its side, a RequestPushEvent is sent
// back.
func (s *Server) RegisterPassiveListener(stream wire.EventStream) error {
	ctx := stream.Context()
	id, err := wire.IdentityFromContext(ctx)
	if err != nil {
		s.metrics.Connection(streamEvent, resultRejected)
		s.log.WarnContext(ctx, "gateway.event.rejected", slog.String("err", err.Error()))
		return status.Error(codes.Unauthenticated, err.Error())
	}
	s.metrics.Connection(streamEvent, resultAccepted)
	closed := s.metrics.StreamOpened(streamEvent)
	defer closed()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		AccountID: id.UID,
		UIN:       id.UIN,
		Version:   id.Version,
	})
	s.log.InfoContext(ctx, "gateway.event.connected")

	var b *bot.Bot
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			s.log.InfoContext(ctx, "gateway.event.disconnected")
			return stream.SendAndClose(&kritor.RequestPushEvent{})
		}
		if err != nil {
			s.log.WarnContext(ctx, "gateway.event.disconnected", slog.String("err", err.Error()))
			return err
		}

		// A reconnected reverse stream replaces the Bot; follow it.
		if b == nil || !b.Connected() {
			b, err = s.sessions.Await(ctx, id.UID)
			if err != nil {
				return status.FromContextError(err).Err()
			}
		}

		b.IncrementReceived()
		s.metrics.EventReceived(ev.Type.String())
		if err := b.Publish(ev); err != nil {
			s.log.WarnContext(ctx, "gateway.event.malformed",
				slog.Int("type", int(ev.Type)),
				slog.String("err", err.Error()),
			)
		}
	}
}
