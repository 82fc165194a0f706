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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/access"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/blob"
	docservice "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/service"
	docstore "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/store"
	entmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/models"
	entservice "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/service"
	entstore "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/entitlement/store"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/events"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/identity"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/config"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/httpserver"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/logger"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/metrics"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/postgres"
	platformredis "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/redis"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/reporting"
	httpapi "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/transport/http"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/analyzer"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/dispatcher"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/statemachine"
	vstore "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/store"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/tx"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services packages.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()

	// The analyzer callback authenticates with sha256(request_id + seed).
	// An empty seed would leave the checksum forgeable from the request id
	// alone, so async operation refuses to start without one.
	if cfg.Analyzer.CallbackSeed == "" {
		return errors.New("ANALYZER_CALLBACK_SEED must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	freePlan := entmodels.FreePlan(cfg.FreeTierLimit)

	// Postgres-backed stores when DATABASE_URL is set; in-memory twins
	// otherwise so the service runs standalone in dev and tests.
	var (
		documents docstore.Store
		requests  vstore.Store
		subs      entstore.Store
		directory access.AdminDirectory
		runner    tx.Runner
	)
	if db != nil {
		documents = docstore.NewPostgres(db)
		requests = vstore.NewPostgres(db)
		subs = entstore.NewPostgres(db, freePlan)
		directory = access.NewPostgresDirectory(db)
		runner = &tx.SQLRunner{DB: db}
	} else {
		log.Warn("no DATABASE_URL set, using in-memory stores")
		documents = docstore.NewMemory()
		requests = vstore.NewMemory()
		subs = entstore.NewMemory(freePlan)
		directory = access.NewMemoryDirectory()
		runner = &tx.MutexRunner{}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	var sink events.Sink = events.NopSink{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}
	bus := events.NewBus(sink, log)
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		if err := bus.Run(ctx); err != nil {
			log.Error("event bus stopped", slog.String("error", err.Error()))
		}
	}()

	machine, err := statemachine.New(requests, documents, runner, cfg.VerifyConfidenceThreshold,
		statemachine.WithLogger(log),
		statemachine.WithMetrics(m),
		statemachine.WithEmitter(bus),
	)
	if err != nil {
		return err
	}

	gate, err := entservice.New(subs, freePlan, entservice.WithLogger(log))
	if err != nil {
		return err
	}

	accessOpts := []access.Option{access.WithLogger(log)}
	if redisClient != nil {
		accessOpts = append(accessOpts, access.WithCache(redisClient))
	}
	authz, err := access.New(directory, accessOpts...)
	if err != nil {
		return err
	}

	analyzerClient := analyzer.NewHTTPClient(cfg.Analyzer)
	dispatch, err := dispatcher.New(documents, machine, gate, analyzerClient,
		dispatcher.WithLogger(log),
		dispatcher.WithMetrics(m),
		dispatcher.WithAsync(),
	)
	if err != nil {
		return err
	}

	docs, err := docservice.New(documents, requests, authz,
		docservice.WithLogger(log),
		docservice.WithBlobStore(blob.NewMemory()),
	)
	if err != nil {
		return err
	}

	reporterOpts := []reporting.Option{reporting.WithLogger(log)}
	identityOpts := []identity.Option{identity.WithLogger(log)}
	if redisClient != nil {
		activity := reporting.NewRedisActivity(redisClient)
		reporterOpts = append(reporterOpts, reporting.WithActivitySource(activity))
		identityOpts = append(identityOpts, identity.WithLoginRecorder(activity))
	}
	reporter, err := reporting.New(requests, reporterOpts...)
	if err != nil {
		return err
	}

	validator := identity.New(cfg.JWTSigningKey, identityOpts...)

	handler := httpapi.New(docs, dispatch, reporter, authz, validator, m, log, cfg.Analyzer.CallbackSeed)
	srv := httpserver.New(cfg.Addr, httpapi.NewRouter(handler))

	serverErr := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := dispatch.Close(); err != nil {
		log.Error("dispatcher drain failed", slog.String("error", err.Error()))
	}
	<-busDone
	return nil
}
