package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/keymend/keymend/internal/config"
	"github.com/keymend/keymend/internal/database"
	"github.com/keymend/keymend/internal/handlers"
	"github.com/keymend/keymend/internal/logging"
	"github.com/keymend/keymend/internal/middleware"
	"github.com/keymend/keymend/internal/reconcile"
	"github.com/keymend/keymend/internal/secrets"
	"github.com/keymend/keymend/internal/sshkeys"
	"github.com/robfig/cron/v3"
)

// reconcileMu serializes runs: the reconciler assumes single-writer access to
// the key records for the duration of one run.
var reconcileMu sync.Mutex

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--seed" {
		runSeedCommand()
		return
	}

	config.Load()
	logging.Init()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	log.Printf("Config: AuthDisabled=%v, ReconcileOnStart=%v, ReconcileSchedule=%q",
		config.Cfg.AuthDisabled, config.Cfg.ReconcileOnStart, config.Cfg.ReconcileSchedule)

	handlers.RunReconcile = runReconcileJob

	ctx := context.Background()

	if config.Cfg.ReconcileOnStart {
		if _, err := runReconcileJob(ctx); err != nil {
			log.Printf("WARNING: startup reconcile: %v", err)
		}
	}

	var sched *cron.Cron
	if config.Cfg.ReconcileSchedule != "" {
		sched = cron.New()
		_, err := sched.AddFunc(config.Cfg.ReconcileSchedule, func() {
			if _, err := runReconcileJob(ctx); err != nil {
				log.Printf("Scheduled reconcile: %v", err)
			}
		})
		if err != nil {
			log.Fatalf("Invalid reconcile schedule %q: %v", config.Cfg.ReconcileSchedule, err)
		}
		sched.Start()
		log.Printf("Reconcile schedule active: %s", config.Cfg.ReconcileSchedule)
	}

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (no auth)
	r.Get("/health", handlers.HealthCheck)

	// API v1 (admin token required)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Get("/keys", handlers.ListKeys)
		r.Get("/keys/{id}", handlers.GetKey)

		r.Post("/reconcile", handlers.TriggerReconcile)
		r.Get("/reconcile/runs", handlers.ListReconcileRuns)
		r.Get("/reconcile/watch", handlers.WatchReconcile)

		r.Get("/logs", handlers.GetServerLogs)
	})

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	if sched != nil {
		<-sched.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// runReconcileJob performs one reconciliation run against the database-backed
// stores and persists the run report. Runs are serialized; a trigger that
// arrives while a run is in flight waits for it and then runs.
func runReconcileJob(ctx context.Context) (*reconcile.Result, error) {
	reconcileMu.Lock()
	defer reconcileMu.Unlock()

	rec := &reconcile.Reconciler{
		Records: database.NewKeyStore(),
		Secrets: secrets.NewStore(),
		Derive:  sshkeys.DerivePublicKey,
		OnEvent: handlers.PublishReconcileEvent,
	}

	result, runErr := rec.ReconcileAll(ctx)

	errKind := ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, reconcile.ErrStoreUnavailable):
		errKind = "store_unavailable"
	case errors.Is(runErr, reconcile.ErrCommitFailed):
		errKind = "commit_failed"
	default:
		errKind = "error"
	}

	if result != nil {
		saveRunReport(result, errKind)
		log.Printf("Reconcile run %s: already_valid=%d succeeded=%d skipped=%d failed=%d committed=%v error=%q",
			result.RunID, result.AlreadyValid, result.Succeeded, result.Skipped,
			result.Failed, result.Committed, errKind)
	}

	return result, runErr
}

// saveRunReport persists a run summary. Reporting is advisory: failures are
// logged, never propagated into the run's outcome.
func saveRunReport(result *reconcile.Result, errKind string) {
	report := ""
	if len(result.Outcomes) > 0 {
		if data, err := json.Marshal(result.Outcomes); err == nil {
			report = string(data)
		}
	}

	run := &database.ReconcileRun{
		ID:           result.RunID,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
		AlreadyValid: result.AlreadyValid,
		Succeeded:    result.Succeeded,
		Skipped:      result.Skipped,
		Failed:       result.Failed,
		Committed:    result.Committed,
		ErrorKind:    errKind,
		Report:       report,
	}
	if err := database.SaveReconcileRun(run); err != nil {
		log.Printf("Save reconcile run %s: %v", result.RunID, err)
		return
	}
	if err := database.PruneReconcileRuns(config.Cfg.ReconcileRunHistory); err != nil {
		log.Printf("Prune reconcile runs: %v", err)
	}
}

func runSeedCommand() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "", "Path to seed manifest (YAML)")
	fs.Parse(os.Args[2:])

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: keymend --seed --file <manifest.yaml>")
		os.Exit(1)
	}

	config.Load()
	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	created, err := secrets.LoadSeedFile(*file)
	if err != nil {
		log.Fatalf("Seed failed after %d records: %v", created, err)
	}
	fmt.Printf("Seeded %d key record(s) from %s\n", created, *file)
}
