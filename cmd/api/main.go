package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ceylontrails/tourchat/internal/config"
	"github.com/ceylontrails/tourchat/internal/handler"
	"github.com/ceylontrails/tourchat/internal/handler/realtime"
	"github.com/ceylontrails/tourchat/internal/middleware"
	"github.com/ceylontrails/tourchat/internal/model/guide"
	"github.com/ceylontrails/tourchat/internal/service/ai"
	"github.com/ceylontrails/tourchat/internal/service/chat"
	"github.com/ceylontrails/tourchat/internal/service/intent"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	config.SetupLogging(cfg.Log, os.Stderr)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, using system environment only")
	}

	// Initialize guide catalog and chat service
	guideStore := guide.NewMemoryStore(guide.Seed())
	chatService := chat.NewService()

	// Initialize AI service, falling back to rule-based replies
	var responder ai.Responder = ai.RuleResponder{}
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize AI service, using rule-based replies")
		} else {
			log.Info().Str("model", cfg.AI.Model).Msg("AI service initialized")

			// Initialize intent classifier (LLM-based with keyword fallback)
			classifier, err := intent.NewService(ctx, aiService.ChatModel(), intent.Config{
				Enabled:      cfg.AI.IntentLLMEnabled,
				HistoryLimit: cfg.AI.IntentHistoryLimit,
			})
			if err != nil {
				log.Warn().Err(err).Msg("failed to initialize intent classifier, using keywords")
			} else if classifier.Enabled() {
				aiService.WithClassifier(classifier)
				log.Info().Msg("intent classifier enabled")
			}
			responder = aiService
		}
	} else {
		log.Info().Msg("Ark credentials not configured, using rule-based replies")
	}

	if len(cfg.Auth.Tokens) == 0 {
		log.Warn().Msg("no API tokens configured, only guest chat is available")
	}

	// Initialize realtime hub
	assistant := ai.NewAssistant(responder, chatService, guideStore)
	authenticator := middleware.NewAuthenticator(cfg.Auth.Tokens)
	hub := realtime.NewHub(chatService, assistant, authenticator, realtime.DefaultOptions())

	router := handler.NewRouter(guideStore, chatService, assistant, authenticator, hub)

	startServer(ctx, cfg.Server, router, hub)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, hub *realtime.Hub) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv.RegisterOnShutdown(hub.Close)

	log.Info().Str("addr", serverCfg.Addr).Msg("tourchat backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
