package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/campaignrules/accountengine"
	"github.com/liamcoop/campaignrules/feed"
	"github.com/liamcoop/campaignrules/history"
	"github.com/liamcoop/campaignrules/internal/config"
	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/notify"
	"github.com/liamcoop/campaignrules/pipeline"
	"github.com/liamcoop/campaignrules/rules"
	"github.com/liamcoop/campaignrules/scheduler"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = logger.Shutdown(shutdownCtx)
}

func openDB(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	var db *sql.DB
	if cfg.Database.URL != "" {
		var err error
		if db, err = openDB(cfg.Database.URL); err != nil {
			return err
		}
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, accounts and history are kept in memory")
	}

	opts := []rules.Option{rules.WithParallelism(cfg.Rules.Parallelism)}
	if cfg.Rules.StrictValidation {
		opts = append(opts, rules.WithStrictValidation())
	}

	manager := accountengine.NewManager(db, opts...)
	if err := manager.LoadAllAccounts(); err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	var recorder history.Recorder
	if db != nil {
		recorder = history.NewPostgresRecorder(db)
	} else {
		recorder = history.NewMemoryRecorder(cfg.History.SnapshotsPerCampaign, cfg.History.ActionsPerAccount)
	}
	defer recorder.Close()

	hub := feed.NewHub(cfg.Websocket.MaxClients, cfg.Websocket.AllowedOrigins)
	defer hub.Close()

	notifiers := notify.Multi{
		notify.LogNotifier{},
		notify.RecorderNotifier{Recorder: recorder},
		notify.HubNotifier{Hub: hub},
	}
	if cfg.KafkaEnabled() && cfg.Kafka.ActionTopic != "" {
		kn, err := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.ActionTopic)
		if err != nil {
			return fmt.Errorf("failed to create action producer: %w", err)
		}
		defer kn.Close()
		notifiers = append(notifiers, kn)
	}

	pipe, err := pipeline.New(pipeline.Config{
		Engines:     manager,
		Recorder:    recorder,
		Broadcaster: hub,
		Notifier:    notifiers,
		Workers:     cfg.Pipeline.Workers,
		QueueSize:   cfg.Pipeline.QueueSize,
	})
	if err != nil {
		return err
	}
	pipe.Start()

	sched := scheduler.NewScheduler(ctx, recorder, time.Duration(cfg.Retention.Days)*24*time.Hour, func() []any {
		st := pipe.Stats()
		return []any{
			"accounts", len(manager.ListAccounts()),
			"processed", st.Processed,
			"failed", st.Failed,
			"actions", st.Actions,
			"queued", st.Queued,
			"websocket_clients", hub.Clients(),
		}
	})
	if err := sched.RegisterAll(cfg.Retention.Cron, cfg.Retention.StatsCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	server := NewServer(Deps{
		DB:       db,
		Manager:  manager,
		Recorder: recorder,
		Pipeline: pipe,
		Hub:      hub,
	})
	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", "port", cfg.Server.Port, "accounts", len(manager.ListAccounts()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var consumer *feed.Consumer
	if cfg.KafkaEnabled() {
		consumer, err = feed.NewConsumer(feed.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.SnapshotTopic,
			GroupID: cfg.Kafka.GroupID,
		}, submitHandler(pipe))
		if err != nil {
			return fmt.Errorf("failed to create snapshot consumer: %w", err)
		}
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Shutdown does not track hijacked websocket connections
		hub.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				logger.Error("Consumer close error", "error", err)
			}
		}
		if err := pipe.Stop(shutdownCtx); err != nil {
			logger.Error("Pipeline shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Server stopped")
	return err
}

// submitHandler queues consumed snapshots. The offset is committed once a
// snapshot is queued, so snapshots still queued when the process dies are
// lost. Snapshots that can never be evaluated are rejected so the consumer
// commits past them.
func submitHandler(pipe *pipeline.Pipeline) feed.Handler {
	return func(ctx context.Context, s *rules.Snapshot) error {
		err := pipe.Submit(ctx, s)
		if errors.Is(err, pipeline.ErrInvalidSnapshot) || errors.Is(err, accountengine.ErrAccountNotFound) {
			return fmt.Errorf("%w: %v", feed.ErrRejected, err)
		}
		return err
	}
}
