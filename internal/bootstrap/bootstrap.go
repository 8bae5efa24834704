// Package bootstrap assembles the lookup service: configuration,
// logging, the browser pool, the captcha backends and the HTTP surface,
// plus the graceful teardown of all of them.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/captcha"
	"consulta-vehicular-go/internal/domain/lookup"
	"consulta-vehicular-go/internal/domain/session"
	"consulta-vehicular-go/internal/domain/turnstile"
	platformconfig "consulta-vehicular-go/internal/platform/config"
	platformerrors "consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
	"consulta-vehicular-go/internal/platform/observability"
	"consulta-vehicular-go/internal/providers/capmonster"
	"consulta-vehicular-go/internal/providers/vision"
	"consulta-vehicular-go/internal/sites"
	httptransport "consulta-vehicular-go/internal/transport/http"
	httpchallenge "consulta-vehicular-go/internal/transport/http/challenge"
	httplookup "consulta-vehicular-go/internal/transport/http/lookup"
	httpstatus "consulta-vehicular-go/internal/transport/http/status"
)

// appState holds everything built during startup so teardown can walk
// it in reverse.
type appState struct {
	config   *platformconfig.Config
	logger   *logging.Logger
	driver   *browser.Driver
	pool     *browser.Pool
	sessions *session.Registry
}

// Run starts the whole service lifecycle: load config, wire the
// dependency graph, serve HTTP, and shut everything down on signal.
func Run(ctx context.Context) error {
	state, err := buildState()
	if err != nil {
		return err
	}
	logger := state.logger
	defer logger.Close()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	router, err := buildRouter(rootCtx, state)
	if err != nil {
		cancel()
		return err
	}

	state.pool.Warmup(rootCtx)
	state.sessions.StartCleanupLoop(rootCtx, 10*time.Second)

	startHTTPServer(state, router, group, groupCtx)

	err = waitForShutdown(signalCtx, cancel, logger, group)

	state.sessions.Shutdown()
	state.pool.Close()
	if shutdownErr := state.driver.Shutdown(); shutdownErr != nil {
		logger.WarnTag("Boot", "browser shutdown: %v", shutdownErr)
	}

	if err != nil {
		return err
	}
	logger.InfoTag("Boot", "service stopped cleanly")
	return nil
}

func buildState() (*appState, error) {
	loaded, err := platformconfig.NewLoader().Load()
	if err != nil {
		return nil, err
	}
	cfg := loaded.Config

	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if loaded.Path != "" {
		logger.InfoTag("Boot", "configuration loaded from %s", loaded.Path)
	} else {
		logger.InfoTag("Boot", "no config file found, using defaults")
	}
	if cfg.Captcha.CapmonsterKey == "" {
		logger.WarnTag("Boot", "no captcha backend key configured, automatic solving will fail")
	}

	observability.Setup(observability.Config{Enabled: cfg.Obs.Enabled}, logger.Slog())

	driver := browser.NewDriver(cfg.Browser, logger)
	pool := browser.NewPool(driver, cfg.Pool, logger)

	sessions := session.NewRegistry(session.Config{
		TTL:      time.Duration(cfg.Session.TTLSec) * time.Second,
		Capacity: cfg.Session.MaxSessions,
	}, logger)

	return &appState{
		config:   cfg,
		logger:   logger,
		driver:   driver,
		pool:     pool,
		sessions: sessions,
	}, nil
}

// buildRouter wires the captcha backends, the site drivers and the
// three HTTP services onto a fresh gin engine.
func buildRouter(ctx context.Context, state *appState) (*gin.Engine, error) {
	cfg := state.config
	logger := state.logger

	capClient := capmonster.NewClient(cfg.Captcha)

	// The licence portal uses a six-digit captcha, so its engine solver
	// is pinned numeric. The other portals mix letters in, so the raw
	// solver stays free-form.
	numericSolver := capmonster.NewImageSolver(capClient, "", true)
	textSolver := capmonster.NewImageSolver(capClient, "", false)
	tokenSolver := capmonster.NewTokenSolver(capClient)

	engine := captcha.NewEngine(numericSolver, logger,
		captcha.WithCallTimeout(time.Duration(cfg.Captcha.CallTimeoutMs)*time.Millisecond),
	)
	ts := turnstile.NewSolver(tokenSolver, logger)
	visionExtractor := vision.NewExtractor(cfg.Vision, logger)

	registry := sites.NewRegistry(cfg, logger, state.pool, engine, textSolver, ts, visionExtractor)
	aggregator := lookup.NewAggregator(registry, cfg, logger)

	router, err := httptransport.Build(httptransport.Options{
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	router.Engine.NoRoute(func(c *gin.Context) {
		httptransport.RespondError(c, http.StatusNotFound, "not found", nil)
	})

	lookupSvc, err := httplookup.NewService(aggregator, logger)
	if err != nil {
		return nil, err
	}
	challengeSvc, err := httpchallenge.NewService(cfg, logger, registry, state.sessions)
	if err != nil {
		return nil, err
	}
	statusSvc, err := httpstatus.NewService(logger, state.pool, state.sessions)
	if err != nil {
		return nil, err
	}

	for _, svc := range []interface {
		Register(context.Context, *gin.RouterGroup) error
	}{lookupSvc, challengeSvc, statusSvc} {
		if err := svc.Register(ctx, router.API); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "bootstrap.routes", "route registration failed", err)
		}
	}

	return router.Engine, nil
}

func startHTTPServer(state *appState, router *gin.Engine, g *errgroup.Group, groupCtx context.Context) {
	cfg := state.config
	logger := state.logger

	httpServer := &http.Server{
		Addr:    cfg.Server.IP + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.WarnTag("HTTP", "server shutdown: %v", err)
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *logging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("Boot", "shutdown signal received, cleaning up")

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Boot", "shutdown finished with error: %v", err)
			return err
		}
	case <-time.After(15 * time.Second):
		logger.ErrorTag("Boot", "shutdown timed out, exiting anyway")
		return errors.New("shutdown timed out")
	}
	return nil
}
