package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chenmingyu/reverie/backend/internal/archive"
	"github.com/chenmingyu/reverie/backend/internal/cache"
	"github.com/chenmingyu/reverie/backend/internal/companion"
	"github.com/chenmingyu/reverie/backend/internal/config"
	"github.com/chenmingyu/reverie/backend/internal/dispatch"
	"github.com/chenmingyu/reverie/backend/internal/generate"
	"github.com/chenmingyu/reverie/backend/internal/handler"
	"github.com/chenmingyu/reverie/backend/internal/model/character"
	"github.com/chenmingyu/reverie/backend/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if !cfg.AI.Enabled() {
		log.Fatal("generation backend not configured: set ARK_MODEL and ARK_API_KEY (or AK/SK pair)")
	}

	generator, err := generate.NewArkGenerator(cfg.AI.Ark)
	if err != nil {
		log.Fatalf("failed to initialize generator: %v", err)
	}

	var archiver *archive.Writer
	if cfg.Archive.Enabled() {
		archiver, err = archive.Open(cfg.Archive.DSN)
		if err != nil {
			log.Printf("warning: archive unavailable, continuing without write-through: %v", err)
			archiver = nil
		} else {
			log.Println("archive write-through enabled")
		}
	} else {
		log.Println("ARCHIVE_DSN not set, skipping durable write-through")
	}

	roster := character.NewMemoryStore(character.Seed())
	sessions := session.NewStore(roster, cfg.Engine.WindowSize)
	responses := cache.New(cfg.Engine.CacheTTL)

	queue := dispatch.New(dispatch.Config{
		Workers:        cfg.Engine.Workers,
		MaxDepth:       cfg.Engine.QueueDepth,
		MaxRetries:     cfg.Engine.MaxRetries,
		RequestTimeout: cfg.Engine.RequestTimeout,
	}, generator, sessions, responses, archiver)

	engine := companion.New(companion.Config{
		Model:         cfg.AI.Model,
		RequestBudget: cfg.Engine.RequestTimeout,
	}, roster, sessions, responses, queue)

	queue.Start(ctx)
	defer queue.Stop()

	go runEvictionLoop(ctx, engine, cfg.Engine)

	router := handler.NewRouter(roster, engine)
	startServer(ctx, cfg.Server, router)
}

// runEvictionLoop periodically sweeps idle sessions so queued work for them
// is cancelled instead of leaking.
func runEvictionLoop(ctx context.Context, engine *companion.Engine, cfg config.EngineConfig) {
	ticker := time.NewTicker(cfg.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			engine.EvictIdle(now, cfg.IdleTimeout)
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Reverie companion engine listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
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
