// Package api provides the HTTP surface and the main server bootstrap for
// Tipline.
//
// It exposes the WhatsApp and Discord webhook endpoints, the manual tip sweep
// endpoint, and health/stats probes, and wires the store, conversation flows,
// messaging services and cron scheduler together.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthtipsdaily/tipline/internal/delivery"
	"github.com/healthtipsdaily/tipline/internal/flow"
	"github.com/healthtipsdaily/tipline/internal/genai"
	"github.com/healthtipsdaily/tipline/internal/messaging"
	"github.com/healthtipsdaily/tipline/internal/scheduler"
	"github.com/healthtipsdaily/tipline/internal/store"
	"github.com/healthtipsdaily/tipline/internal/whatsapp"
)

// Default server configuration.
const (
	// DefaultAddr is the default API server listen address.
	DefaultAddr = ":8080"
	// DefaultSweepCron runs the tip sweep every minute so each schedule's
	// wall-clock match is observed.
	DefaultSweepCron = "* * * * *"
	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 10 * time.Second
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr                string
	SweepCron           string
	WhatsAppVerifyToken string
	DiscordBotToken     string
	UseTwilio           bool
	TwilioOpts          []messaging.TwilioOption
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSweepCron sets the cron expression for the recurring tip sweep.
func WithSweepCron(expr string) Option {
	return func(o *Opts) { o.SweepCron = expr }
}

// WithWhatsAppVerifyToken sets the token used for webhook verification
// handshakes on GET /webhook/whatsapp.
func WithWhatsAppVerifyToken(token string) Option {
	return func(o *Opts) { o.WhatsAppVerifyToken = token }
}

// WithDiscordBotToken enables outbound Discord delivery with the given bot
// token.
func WithDiscordBotToken(token string) Option {
	return func(o *Opts) { o.DiscordBotToken = token }
}

// WithTwilioSender sends WhatsApp messages through the Twilio REST API
// instead of a linked Whatsmeow device.
func WithTwilioSender(opts ...messaging.TwilioOption) Option {
	return func(o *Opts) {
		o.UseTwilio = true
		o.TwilioOpts = opts
	}
}

// Server holds the wired application components behind the HTTP handlers.
type Server struct {
	st          store.Store
	onboarding  *flow.Onboarding
	conv        *flow.Conversation
	tips        *flow.TipGenerator
	dispatcher  *delivery.Dispatcher
	msgService  messaging.Service
	discordSvc  *messaging.DiscordService
	verifyToken string
}

// NewServer wires a server from already-constructed components. msgService
// and discordSvc may be nil, disabling the corresponding outbound channel.
func NewServer(st store.Store, gen flow.Generator, msgService messaging.Service, discordSvc *messaging.DiscordService, verifyToken string) *Server {
	tips := flow.NewTipGenerator(gen)

	var waSender delivery.Sender
	if msgService != nil {
		waSender = msgService
	}
	var dmSender delivery.DirectSender
	if discordSvc != nil {
		dmSender = discordSvc
	}

	return &Server{
		st:          st,
		onboarding:  flow.NewOnboarding(st),
		conv:        flow.NewConversation(st, gen),
		tips:        tips,
		dispatcher:  delivery.NewDispatcher(st, tips, waSender, dmSender),
		msgService:  msgService,
		discordSvc:  discordSvc,
		verifyToken: verifyToken,
	}
}

// Routes registers all HTTP handlers on the given mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/webhook/whatsapp", s.whatsappWebhookHandler)
	mux.HandleFunc("/webhook/discord", s.discordWebhookHandler)
	mux.HandleFunc("/tips/send", s.sweepHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
}

// Run bootstraps the full service: store, GenAI client, messaging services,
// sweep scheduler and HTTP server. It blocks until SIGINT/SIGTERM and then
// shuts down gracefully.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	cfg := Opts{Addr: DefaultAddr, SweepCron: DefaultSweepCron}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	gen, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize GenAI client: %w", err)
	}

	msgService, err := buildMessagingService(cfg, waOpts)
	if err != nil {
		return err
	}

	var discordSvc *messaging.DiscordService
	if cfg.DiscordBotToken != "" {
		discordSvc, err = messaging.NewDiscordService(messaging.WithBotToken(cfg.DiscordBotToken))
		if err != nil {
			return fmt.Errorf("failed to initialize Discord service: %w", err)
		}
	} else {
		slog.Warn("api.Run: no Discord bot token configured, Discord delivery disabled")
	}

	srv := NewServer(st, gen, msgService, discordSvc, cfg.WhatsAppVerifyToken)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(cfg.SweepCron, func() {
		now := time.Now()
		if _, err := srv.dispatcher.Sweep(context.Background(), now, delivery.SweepOptions{}); err != nil {
			slog.Error("api.Run: scheduled sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule tip sweep %q: %w", cfg.SweepCron, err)
	}
	slog.Info("api.Run: tip sweep scheduled", "cron", cfg.SweepCron)

	mux := http.NewServeMux()
	srv.Routes(mux)
	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api.Run: API server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("api.Run: shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	return nil
}

// buildMessagingService selects the outbound WhatsApp transport. Twilio when
// requested, otherwise a linked Whatsmeow device.
func buildMessagingService(cfg Opts, waOpts []whatsapp.Option) (messaging.Service, error) {
	if cfg.UseTwilio {
		svc, err := messaging.NewTwilioService(cfg.TwilioOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Twilio service: %w", err)
		}
		slog.Info("api.Run: using Twilio WhatsApp transport")
		return svc, nil
	}
	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp client: %w", err)
	}
	return messaging.NewWhatsAppService(client), nil
}

// nowUTC is the timestamp source for request handlers.
func nowUTC() time.Time {
	return time.Now().UTC()
}
