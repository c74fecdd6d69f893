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

	"github.com/aws/aws-lambda-go/lambda"
	"golang.org/x/sync/errgroup"

	"axioma-bot/handler"
	"axioma-bot/internal/config"
	"axioma-bot/internal/inbound"
	"axioma-bot/internal/integrations/chatwoot"
	"axioma-bot/internal/integrations/openai"
	"axioma-bot/internal/integrations/paramstore"
	"axioma-bot/internal/intent"
	"axioma-bot/internal/logging"
	"axioma-bot/internal/memory"
	"axioma-bot/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// ---- Parameter store (optional) ----
	var params paramstore.Getter
	if cfg.ParamPrefix != "" {
		ssmClient, err := paramstore.NewFromEnvironment(ctx, cfg.ParamPrefix)
		if err != nil {
			logger.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		params = ssmClient
	}
	completionKey := paramstore.NewSecret(cfg.CompletionAPIKey, params, "completion_api_key")
	chatwootToken := paramstore.NewSecret(cfg.ChatwootToken, params, "chatwoot_token")
	if !completionKey.Present() {
		logger.Warn("completion api key is not configured; every reply will be a fallback")
	}

	// ---- Clients ----
	llm, err := openai.NewClient(completionKey,
		openai.WithBaseURL(cfg.CompletionURL),
		openai.WithLogger(logger),
		openai.WithResponseLogging(cfg.LogCompletionResp),
	)
	if err != nil {
		logger.Error("failed to create completion client", "err", err)
		os.Exit(1)
	}

	authMode := chatwoot.ParseAuthMode(cfg.ChatwootAuthMode)
	var poster usecase.MessagePoster
	if cfg.ChatwootURL != "" {
		cw, err := chatwoot.NewClient(cfg.ChatwootURL, chatwootToken, chatwoot.WithAuthMode(authMode))
		if err != nil {
			logger.Error("failed to create chatwoot client", "err", err)
			os.Exit(1)
		}
		poster = cw
	}

	// ---- Relay ----
	catalog := intent.DefaultCatalog()
	if cfg.PriceCatalogSource == config.CatalogSSM {
		catalog, err = intent.LoadCatalog(ctx, params, "price-catalog")
		if err != nil {
			logger.Error("failed to load price catalog", "err", err)
			os.Exit(1)
		}
	}
	matcher, err := intent.NewMatcher(catalog)
	if err != nil {
		logger.Error("failed to build price shortcut", "err", err)
		os.Exit(1)
	}

	completer, err := usecase.NewCompleter(llm, usecase.CompleterConfig{
		Model:  cfg.CompletionModel,
		CTAURL: cfg.CTAURL,
	}, nil)
	if err != nil {
		logger.Error("failed to create completer", "err", err)
		os.Exit(1)
	}

	mode, err := usecase.ParseDispatchMode(cfg.DispatchMode)
	if err != nil {
		logger.Error("invalid dispatch mode", "err", err)
		os.Exit(1)
	}
	if mode.Publishes() && poster == nil {
		logger.Warn("dispatch mode posts replies but CHATWOOT_URL is not set", "dispatch_mode", mode)
	}

	store := memory.New()

	relay, err := usecase.NewRelayService(
		inbound.NewClassifier(cfg.AllowedInboxIDs),
		store,
		completer,
		usecase.NewDispatcher(mode, poster),
		usecase.WithShortcuts(matcher),
		usecase.WithCTA(cfg.CTAURL),
	)
	if err != nil {
		logger.Error("failed to create relay service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(relay, handler.ServiceInfo{
		Model:        completer.Model(),
		ChatwootURL:  cfg.ChatwootURL,
		AuthMode:     string(authMode),
		TokenPresent: chatwootToken.Present(),
	},
		handler.WithLogger(logger),
		handler.WithSignatureSecret(cfg.WebhookSecret),
		handler.WithBodyLogging(cfg.LogBody),
	)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	if cfg.Runtime == config.RuntimeLambda {
		go store.Run(ctx, logger)
		lambda.Start(h.Handle)
		return
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		store.Run(gctx, logger)
		return nil
	})
	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr, "model", completer.Model(), "dispatch_mode", mode)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
