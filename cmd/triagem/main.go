// Triagem server — polls the chat rooms, runs the job workers, and serves
// the webhook, widget, and monitoring HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opentriagem/triagem/pkg/api"
	"github.com/opentriagem/triagem/pkg/auth"
	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/database"
	"github.com/opentriagem/triagem/pkg/extract"
	"github.com/opentriagem/triagem/pkg/llm"
	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/poller"
	"github.com/opentriagem/triagem/pkg/queue"
	"github.com/opentriagem/triagem/pkg/repo"
	"github.com/opentriagem/triagem/pkg/services"
	"github.com/opentriagem/triagem/pkg/version"
)

// resolvePodID determines the worker-claim identifier for this replica.
// Priority: POD_ID env > HOSTNAME env > "local".
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	roles := flag.String("roles", "api,worker,poller",
		"Comma-separated process roles: api, worker, poller")
	issueToken := flag.String("issue-token", "",
		"Issue a bearer token for the given user email and exit")
	envFile := flag.String("env-file", ".env", "Path to the .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx := context.Background()
	podID := resolvePodID()

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logger.Error("database close failed", "error", err)
		}
	}()
	if err := database.RunMigrations(dbClient.DB()); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	repos := repo.New(dbClient.DB())

	if *issueToken != "" {
		token, err := auth.IssueToken(ctx, repos, *issueToken)
		if err != nil {
			logger.Error("token issuance failed", "email", *issueToken, "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger.Info("starting triagem", "version", version.Full(), "pod_id", podID, "roles", *roles)

	if err := auth.BootstrapAdmin(ctx, cfg.Bootstrap, repos, auth.BcryptHasher{}, logger); err != nil {
		logger.Error("admin bootstrap failed", "error", err)
		os.Exit(1)
	}

	chat, err := matrix.NewClient(cfg.Matrix, logger)
	if err != nil {
		logger.Error("chat client init failed", "error", err)
		os.Exit(1)
	}

	var llmClient llm.Client
	if cfg.LLM.RuntimeMode == config.LLMModeProvider {
		llmClient = llm.NewOpenAIClient(cfg.LLM.OpenAIAPIKey)
	} else {
		llmClient = llm.NewDeterministicClient()
	}
	stages := llm.NewStages(llmClient, llm.NewRenderer(repos.Prompts), cfg.LLM.ModelLLM1, cfg.LLM.ModelLLM2)

	// Services.
	prior := services.NewPriorCaseService(repos)
	intake := services.NewIntakeService(repos, chat, logger)
	processPDF := services.NewProcessPDFService(repos, chat,
		&extract.RawTextExtractor{}, extract.RegexAgencyExtractor{}, stages, cfg.LLM.LLM2Enabled, logger)
	widget := services.NewRoom2WidgetService(repos, chat, prior, cfg.Rooms, logger)
	decisions := services.NewDoctorDecisionService(repos, chat, cfg.Rooms, logger)
	room2Replies := services.NewRoom2ReplyService(repos, chat, chat, decisions, cfg.Rooms, logger)
	room3Requests := services.NewRoom3RequestService(repos, chat, cfg.Rooms, logger)
	room3Replies := services.NewRoom3ReplyService(repos, chat, cfg.Rooms, logger)
	finals := services.NewFinalReplyService(repos, chat, logger)
	reactions := services.NewReactionService(repos, logger)
	cleanup := services.NewCleanupService(repos, chat, logger)
	failures := services.NewJobFailureService(repos, logger)
	recovery := services.NewRecoveryService(repos, logger)
	monitoring := services.NewMonitoringService(repos)

	registry := queue.NewRegistry()
	registry.Register(models.JobTypeProcessPDFCase, processPDF.Handle)
	registry.Register(models.JobTypePostRoom2Widget, widget.Handle)
	registry.Register(models.JobTypePostRoom3Request, room3Requests.Handle)
	registry.Register(models.JobTypePostRoom1FinalDenialTriage, finals.Handle)
	registry.Register(models.JobTypePostRoom1FinalAppt, finals.Handle)
	registry.Register(models.JobTypePostRoom1FinalApptDenied, finals.Handle)
	registry.Register(models.JobTypePostRoom1FinalFailure, finals.Handle)
	registry.Register(models.JobTypeExecuteCleanup, cleanup.Handle)

	roleSet := parseRoles(*roles)

	// Startup recovery: orphaned running jobs go back to queued, then decided
	// cases with no pending job get their next step re-enqueued.
	if roleSet["worker"] {
		reset, err := repos.Jobs.ResetRunning(ctx)
		if err != nil {
			logger.Error("job reset failed", "error", err)
			os.Exit(1)
		}
		recovered, err := recovery.Recover(ctx)
		if err != nil {
			logger.Error("case recovery failed", "error", err)
			os.Exit(1)
		}
		logger.Info("startup recovery complete", "jobs_reset", reset, "jobs_enqueued", recovered)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var pool *queue.Pool
	if roleSet["worker"] {
		pool = queue.NewPool(podID, repos, registry, failures, cfg.Worker, logger)
		pool.Start(runCtx)
	}

	var syncPoller *poller.Poller
	if roleSet["poller"] {
		syncPoller = poller.New(chat, poller.Handlers{
			Room1PDF: func(ctx context.Context, roomID string, ev matrix.TimelineEvent) error {
				return intake.HandlePDFEvent(ctx, roomID, ev.EventID, ev.Sender, ev.URL)
			},
			Room2Reply: room2Replies.HandleReply,
			Room3Reply: room3Replies.HandleReply,
			Reaction:   reactions.HandleReaction,
		}, cfg.Rooms, cfg.Matrix.BotUserID, cfg.Matrix.PollInterval, logger)
		syncPoller.JoinConfiguredRooms(runCtx)
		syncPoller.Start(runCtx)
	}

	var httpServer *api.Server
	if roleSet["api"] {
		httpServer = api.NewServer(repos, dbClient, decisions, monitoring, *cfg, logger)
		httpServer.Start()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		shutdownCancel()
	}
	if syncPoller != nil {
		syncPoller.Stop()
	}
	if pool != nil {
		pool.Stop()
	}
	cancel()
	logger.Info("shutdown complete")
}

func parseRoles(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, role := range strings.Split(raw, ",") {
		role = strings.TrimSpace(strings.ToLower(role))
		if role != "" {
			set[role] = true
		}
	}
	return set
}
