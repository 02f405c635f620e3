package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"

	"voicebot/internal/ai"
	"voicebot/internal/auth"
	"voicebot/internal/business"
	"voicebot/internal/calls"
	"voicebot/internal/config"
	"voicebot/internal/dialogue"
	"voicebot/internal/events"
	"voicebot/internal/lifecycle"
	"voicebot/internal/metrics"
	"voicebot/internal/onboarding"
	"voicebot/internal/session"
	"voicebot/internal/telephony"
	"voicebot/internal/tickets"
	"voicebot/internal/usage"
	"voicebot/pkg/logger"
	"voicebot/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := utils.RequireTables(rootCtx, db, utils.CoreTables...); err != nil {
		log.Error("postgres schema check failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	twilio, err := telephony.NewTwilioClient(telephony.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
	})
	if err != nil {
		log.Error("twilio init failed", "err", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	model, err := newModel(rootCtx, cfg.AI)
	if err != nil {
		log.Error("ai model init failed", "provider", cfg.AI.Provider, "err", err)
		os.Exit(1)
	}
	gateway := ai.NewGateway(model,
		ai.WithRecordingFetcher(ai.RecordingFetcherFunc(func(ctx context.Context, url string) (ai.Audio, error) {
			rec, err := twilio.FetchRecording(ctx, url)
			if err != nil {
				return ai.Audio{}, err
			}
			return ai.Audio{Data: rec.Data, MIMEType: rec.MIMEType}, nil
		})),
		ai.WithTimeouts(ai.Timeouts{Text: cfg.AI.TextTimeout, Turn: cfg.AI.TurnTimeout, Audio: cfg.AI.AudioTimeout}),
		ai.WithMetrics(m),
		ai.WithLogger(log),
	)

	var publisher events.Publisher = events.Noop{}
	if cfg.Events.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, log)
		if err != nil {
			log.Error("amqp init failed", "err", err)
			os.Exit(1)
		}
		publisher = p
	}
	defer publisher.Close()
	emitter := events.NewEmitter(publisher, log, m)

	kv := session.NewRedisStore(rdb)
	callSessions := session.NewCalls(kv, cfg.Redis.SessionTTL)
	interviewSessions := session.NewInterviews(kv, cfg.Redis.OnboardingSessionTTL)

	businesses := business.NewPostgresRepo(db, log)
	callRepo := calls.NewPostgresRepo(db)
	usageTracker := usage.NewTracker(usage.NewPostgresRepo(db))
	activeCalls := usage.NewActiveCalls(rdb, 0)
	voice := telephony.Voice{Name: cfg.Voice.Name, Language: cfg.Voice.Language}

	calling := dialogue.NewEngine(dialogue.Config{
		BaseURL:  cfg.App.BaseURL,
		Voice:    voice,
		MaxTurns: cfg.Voice.MaxTurns,
		Location: cfg.Location(),
	})
	calling.Businesses = businesses
	calling.Calls = callRepo
	calling.Sessions = callSessions
	calling.AI = gateway
	calling.Telephony = twilio
	calling.ActiveCalls = activeCalls
	calling.Metrics = m

	interviews := onboarding.NewEngine(onboarding.Config{BaseURL: cfg.App.BaseURL, Voice: voice})
	interviews.Interviews = onboarding.NewPostgresRepo(db)
	interviews.Businesses = businesses
	interviews.Sessions = interviewSessions
	interviews.AI = gateway
	interviews.Telephony = twilio
	interviews.Events = emitter

	recorder := lifecycle.NewRecorder()
	recorder.Calls = callRepo
	recorder.Businesses = businesses
	recorder.Sessions = callSessions
	recorder.AI = gateway
	recorder.Tickets = tickets.NewPostgresRepo(db)
	recorder.Usage = usageTracker
	recorder.ActiveCalls = activeCalls
	recorder.Telephony = twilio
	recorder.Events = emitter
	recorder.Metrics = m

	sweeper := lifecycle.NewSweeper(callRepo, recorder, lifecycle.SweeperConfig{
		Schedule:   cfg.Sweeper.Schedule,
		StaleAfter: cfg.Sweeper.StaleAfter,
		Logger:     log,
	})
	if err := sweeper.Start(); err != nil {
		log.Error("sweeper init failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:         cfg,
		db:          db,
		authMW:      auth.RequireAccessToken(authManager),
		calling:     calling,
		interviews:  interviews,
		recorder:    recorder,
		metrics:     m,
		businesses:  businesses,
		usage:       usageTracker,
		activeCalls: activeCalls,
		calls:       callRepo,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "ai_model", model.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	sweeper.Stop(shutdownCtx)

	// Analyses and onboarding configuration run after the webhook returned.
	done := make(chan struct{})
	go func() {
		recorder.Wait()
		interviews.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("background work still running at shutdown")
	}
}

func newModel(ctx context.Context, cfg config.AIConfig) (ai.Model, error) {
	switch cfg.Provider {
	case "openai":
		return ai.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	case "gemini":
		return ai.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, errors.New("unknown AI provider " + cfg.Provider)
	}
}
