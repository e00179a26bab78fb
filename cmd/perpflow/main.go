// Command perpflow runs the orderflow telemetry and paper-execution
// engine: one shared upstream feed demuxed per symbol, a dry-run
// session per symbol, bounded fan-out over WebSocket, and the HTTP
// control surface (spec.md §6).
//
// Grounded on the teacher's cmd/feedsim/main.go wiring order: context
// with signal-driven cancellation, store connect + migrate, manager/
// coordinator construction, symbol runner startup, then the HTTP
// server with a shutdown goroutine watching ctx.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ndrandal/perpflow/internal/api"
	"github.com/ndrandal/perpflow/internal/archive"
	"github.com/ndrandal/perpflow/internal/auth"
	"github.com/ndrandal/perpflow/internal/backfill"
	"github.com/ndrandal/perpflow/internal/config"
	"github.com/ndrandal/perpflow/internal/coordinator"
	"github.com/ndrandal/perpflow/internal/dryrun"
	"github.com/ndrandal/perpflow/internal/fanout"
	"github.com/ndrandal/perpflow/internal/fixedpoint"
	"github.com/ndrandal/perpflow/internal/orchestrator"
	"github.com/ndrandal/perpflow/internal/persist"
	"github.com/ndrandal/perpflow/internal/symbol"
	"github.com/ndrandal/perpflow/internal/tradesession"
	"github.com/ndrandal/perpflow/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("perpflow starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	symbols := cfg.Symbols
	if len(symbols) == 0 {
		symbols = symbol.Tickers()
	}
	log.Printf("tracking %d symbols", len(symbols))

	// MongoDB: session persistence + archived raw events.
	store, err := persist.NewStore(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer store.Close(context.Background())
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	sessionStore := persist.NewSessionStore(store)
	go persist.RunRetention(ctx, store, cfg.TradeRetentionDays)

	// SQLite-backed kline cache for the backfill coordinator.
	klineDB, err := sql.Open("sqlite", "data/backfill/klines.db")
	if err != nil {
		log.Fatalf("kline cache open failed: %v", err)
	}
	defer klineDB.Close()
	if err := backfill.EnsureSchema(ctx, klineDB); err != nil {
		log.Fatalf("kline cache schema failed: %v", err)
	}

	backfillCfg := backfill.DefaultConfig()
	restClient := upstream.NewRESTClient(cfg.UpstreamRESTURL, backfillCfg.RequestsPerSec, backfillCfg.Burst)
	backfillCo := backfill.New(backfillCfg, restClient, klineDB)

	// Live JSONL archive, with optional S3 offload.
	archiveWriter := archive.NewWriter("data/backfill")
	defer archiveWriter.Close()

	// Local session-status mirror, independent of Mongo availability.
	sessionMirror := archive.NewWriter(cfg.SessionDir)
	defer sessionMirror.Close()
	archiver := archive.New("data/backfill", "data/archive", 10, cfg.ArchiveIntervalHours, cfg.ArchiveAfterHours)
	if cfg.S3Bucket != "" {
		if err := archiver.EnableS3(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix); err != nil {
			log.Printf("warning: S3 archive offload disabled: %v", err)
		}
	}
	go archiver.Run(ctx)

	// Shared upstream feed, demuxed per symbol by the coordinator.
	feed := upstream.New(upstream.DefaultConfig(cfg.UpstreamWSURL, symbols))

	fanoutMgr := fanout.NewManager(256)

	engineCfg := dryrun.DefaultConfig(dryrun.MainnetHosts())
	engineCfg.InitialWalletBalance = fixedpoint.MustToFp(5000)

	orchCfg := orchestrator.DefaultConfig()

	sessionCfg := tradesession.DefaultConfig()
	sessionCfg.MinEventSpacingMs = cfg.DryRunEventIntervalMs

	coordCfg := coordinator.DefaultConfig(engineCfg)
	coordCfg.OrchestratorCfg = orchCfg
	coordCfg.SessionCfg = sessionCfg

	coord := coordinator.New(coordCfg, feed, fanoutMgr, backfillCo, archiveWriter, sessionStore, sessionMirror)
	go coord.Run(ctx, symbols)

	// HTTP/WebSocket server.
	authCfg := auth.Config{
		BearerSecret:         cfg.APIKeySecret,
		ViewerToken:          cfg.ReadonlyViewToken,
		AllowLocalhostNoAuth: cfg.AllowLocalhostNoAuth,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", fanout.Handler(fanoutMgr, authCfg))

	// The ai-dry-run surface requires a second coordinator wired to an
	// AI-sourced decision policy; until that policy source exists this
	// process only runs the standard dry-run surface (see DESIGN.md).
	apiServer := api.NewServer(coord, nil, cfg.DecisionMode)
	apiServer.Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.WSPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("WebSocket feed listening on ws://%s/ws", addr)
	log.Printf("HTTP control surface on http://%s/api", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	log.Println("perpflow stopped")
}
