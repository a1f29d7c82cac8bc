// Command planner runs the portfolio-analysis job orchestrator: it
// consumes job IDs from the queue, drives each through pre-processing and
// concurrent worker dispatch via internal/orchestrator, and serves a
// read-only HTTP surface for job status and liveness. Wiring order follows
// the teacher's cmd/server/main.go: config, then databases, then
// collaborators, then the HTTP server and background loops, then a
// graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/arcfin/planner/internal/archive"
	"github.com/arcfin/planner/internal/clientdata"
	"github.com/arcfin/planner/internal/config"
	"github.com/arcfin/planner/internal/database"
	"github.com/arcfin/planner/internal/events"
	"github.com/arcfin/planner/internal/httpapi"
	"github.com/arcfin/planner/internal/metrics"
	"github.com/arcfin/planner/internal/oracle"
	"github.com/arcfin/planner/internal/orchestrator"
	"github.com/arcfin/planner/internal/queue"
	"github.com/arcfin/planner/internal/queue/sqlitequeue"
	"github.com/arcfin/planner/internal/scheduler"
	"github.com/arcfin/planner/internal/store"
	"github.com/arcfin/planner/internal/worker"
	"github.com/arcfin/planner/internal/worker/httpjson"
	"github.com/arcfin/planner/internal/worker/stub"
	"github.com/arcfin/planner/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "info", Pretty: true}).Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	logger.SetGlobalLogger(log)
	log.Info().Msg("starting planner")

	plannerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "planner.db"),
		Profile: database.ProfileStandard,
		Name:    "planner",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open planner database")
	}
	defer plannerDB.Close()
	if err := plannerDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate planner database")
	}

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open cache database")
	}
	defer cacheDB.Close()
	if err := cacheDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate cache database")
	}

	jobStore := store.New(plannerDB.Conn(), log)
	cacheRepo := clientdata.NewRepository(cacheDB.Conn())
	priceOracle := oracle.New(cfg.OracleBaseURL, cacheRepo, cfg.PriceBatchSize, time.Duration(cfg.PriceBudgetMS)*time.Millisecond, log)

	q := sqlitequeue.New(plannerDB.Conn(), log, 200*time.Millisecond)

	classifier, narrator, visualizer, projector := wireWorkers(*cfg, log)

	bus := events.NewBus(log)
	mx := metrics.New()

	archiver := wireArchiver(*cfg, mx, log)

	o := orchestrator.New(*cfg, orchestrator.Deps{
		Store:      jobStore,
		Oracle:     priceOracle,
		Classifier: classifier,
		Narrator:   narrator,
		Visualizer: visualizer,
		Projector:  projector,
		Events:     bus,
		Metrics:    mx,
	}, log, rand.New(rand.NewSource(time.Now().UnixNano())))

	if archiver != nil {
		bus.Subscribe(events.JobTerminal, func(e *events.Event) {
			data := e.Data.(*events.JobTerminalData)
			job, err := jobStore.GetJob(context.Background(), data.JobID)
			if err != nil {
				log.Warn().Err(err).Str("job_id", data.JobID).Msg("failed to load job for archival")
				return
			}
			archiver.ArchiveJob(context.Background(), job)
		})
	}

	httpSrv := httpapi.New(fmt.Sprintf(":%d", cfg.Port), jobStore, mx, log)
	go func() {
		if err := httpSrv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("http server started")

	sched := scheduler.New(log)
	if err := sched.AddJob("@every 15m", clientdata.NewCleanupJob(cacheRepo, log)); err != nil {
		log.Error().Err(err).Msg("failed to register cache cleanup job")
	}
	if archiver != nil {
		job := archive.RotationJob{Archiver: archiver, RetentionDays: cfg.Archive.RetentionDays}
		if err := sched.AddJob("@every 1h", job); err != nil {
			log.Error().Err(err).Msg("failed to register archive rotation job")
		}
	}
	sched.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runConsumerLoop(ctx, q, o, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down planner")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}
	log.Info().Msg("planner stopped")
}

// runConsumerLoop pulls one message at a time from q and drives it through
// the orchestrator. A nil Handle error means the message reached a
// terminal outcome (or was skipped) and is acked; a non-nil error means
// the Store itself was unreachable, so the message is nacked for
// redelivery rather than silently dropped.
func runConsumerLoop(ctx context.Context, q queue.Consumer, o *orchestrator.Orchestrator, log zerolog.Logger) {
	for {
		msg, err := q.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to receive queue message")
			continue
		}

		if err := o.Handle(ctx, msg.JobID, msg.Attempt); err != nil {
			log.Warn().Err(err).Str("job_id", msg.JobID).Msg("handle failed, nacking for redelivery")
			if nackErr := q.Nack(ctx, msg); nackErr != nil {
				log.Error().Err(nackErr).Str("job_id", msg.JobID).Msg("failed to nack message")
			}
			continue
		}

		if ackErr := q.Ack(ctx, msg); ackErr != nil {
			log.Error().Err(ackErr).Str("job_id", msg.JobID).Msg("failed to ack message")
		}
	}
}

// wireWorkers builds the four worker adapters (the Narrator also wraps the
// Quality Judge backend) over either the
// deterministic stub backend or a real HTTP JSON service, selected by
// worker_backend (spec §9 Open Question: backend is swappable
// configuration, not a compile-time choice).
func wireWorkers(cfg config.Config, log zerolog.Logger) (orchestrator.Classifier, orchestrator.Narrator, orchestrator.Visualizer, orchestrator.Projector) {
	if cfg.WorkerBackend == "httpjson" {
		client := &http.Client{Timeout: time.Duration(cfg.WorkerTimeoutMS) * time.Millisecond}
		classifierBackend := httpjson.New[worker.ClassifierInput, worker.ClassifierOutput](cfg.WorkerServiceURL+"/classify", client)
		narratorBackend := httpjson.New[worker.NarratorInput, worker.NarratorBackendOutput](cfg.WorkerServiceURL+"/narrate", client)
		judgeBackend := httpjson.New[worker.JudgeInput, worker.JudgeOutput](cfg.WorkerServiceURL+"/judge", client)
		visualizerBackend := httpjson.New[worker.VisualizerInput, worker.VisualizerBackendOutput](cfg.WorkerServiceURL+"/visualize", client)
		projectorBackend := httpjson.New[worker.ProjectorInput, worker.ProjectorBackendOutput](cfg.WorkerServiceURL+"/project", client)

		return worker.NewClassifier(classifierBackend, log),
			worker.NewNarrator(narratorBackend, judgeBackend, cfg.NarratorRequiredHeadings, cfg.JudgeThreshold),
			worker.NewVisualizer(visualizerBackend, cfg.ChartCountMin, cfg.ChartCountMax),
			worker.NewProjector(projectorBackend)
	}

	return worker.NewClassifier(stub.Classifier{}, log),
		worker.NewNarrator(stub.Narrator{RequiredHeadings: cfg.NarratorRequiredHeadings}, stub.Judge{}, cfg.NarratorRequiredHeadings, cfg.JudgeThreshold),
		worker.NewVisualizer(stub.Visualizer{}, cfg.ChartCountMin, cfg.ChartCountMax),
		worker.NewProjector(stub.Projector{})
}

// wireArchiver builds the job-archival collaborator when configured, or
// nil when archival is disabled. Archival never gates orchestrator
// startup: a broken bucket logs and disables archival rather than
// crashing the process.
func wireArchiver(cfg config.Config, mx *metrics.Registry, log zerolog.Logger) *archive.Archiver {
	if !cfg.Archive.Enabled {
		return nil
	}
	client, err := archive.NewClient(context.Background(), cfg.Archive.Endpoint, cfg.Archive.Region, cfg.Archive.Bucket, cfg.Archive.AccessKeyID, cfg.Archive.SecretAccessKey, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize archive client, archival disabled")
		return nil
	}
	return archive.New(client, mx, log)
}
