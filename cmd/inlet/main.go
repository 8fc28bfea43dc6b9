package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/inletmail/inlet/internal/api"
	"github.com/inletmail/inlet/internal/config"
	"github.com/inletmail/inlet/internal/database"
	"github.com/inletmail/inlet/internal/hub"
	"github.com/inletmail/inlet/internal/inbound"
	"github.com/inletmail/inlet/internal/mail"
	"github.com/inletmail/inlet/internal/models"
	"github.com/inletmail/inlet/internal/pipeline"
	"github.com/inletmail/inlet/internal/queue"
	"github.com/inletmail/inlet/internal/repository"
	"github.com/inletmail/inlet/internal/services"
	smtpserver "github.com/inletmail/inlet/internal/smtp"
	"github.com/inletmail/inlet/internal/transport"
	"github.com/inletmail/inlet/internal/worker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "inlet",
	Short: "Inbound email gateway that routes mail to HTTP, Jabber, and job queues",
	Long: `Inlet receives email over SMTP (or drains an IMAP mailbox), matches each
message against routing rules, and forwards the parsed content to the
rule's destination: an HTTP endpoint, a Jabber address, or a background
job queue.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SMTP listener, admin API, and spool worker",
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the spool-draining worker",
	RunE:  runWorker,
}

var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Process a single raw message from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProcess,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Drain the configured IMAP mailbox into the spool",
	RunE:  runFetch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inlet %s\n", rootCmd.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadWithValidation()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	cfg.LogConfig(logger)
	return cfg, logger, nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// buildProcessor wires the matcher, transports, and hooks into a pipeline.
// The hub is optional; when present, completed deliveries are broadcast to
// websocket subscribers.
func buildProcessor(cfg *config.Config, db *gorm.DB, deliveryHub *hub.Hub, logger *slog.Logger) *pipeline.Processor {
	mappingRepo := repository.NewMappingRepository(db)
	loggedRepo := repository.NewLoggedMailRepository(db)
	matcher := services.NewMatcher(mappingRepo)

	transports := []transport.Transport{
		transport.NewHTTPPost(nil, logger),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		transports = append(transports, transport.NewQueue(rdb, cfg.QueueNamespace, logger))
	}
	if cfg.JabberHost != "" {
		transports = append(transports, transport.NewJabber(transport.JabberConfig{
			Host:     cfg.JabberHost,
			User:     cfg.JabberUser,
			Password: cfg.JabberPassword,
		}, logger))
	}
	registry := transport.NewRegistry(transports...)

	hooks := &pipeline.Hooks{}
	if deliveryHub != nil {
		hooks.OnPostProcessing(func(ctx context.Context, msg *mail.Message, mapping *models.Mapping, entry *models.LoggedMail) {
			payload := &hub.DeliveryPayload{
				LoggedMailID: entry.ID,
				Sender:       entry.Sender,
				Recipient:    entry.Recipient,
				Subject:      entry.Subject,
			}
			if entry.DeliveredAt != nil {
				payload.DeliveredAt = entry.DeliveredAt.Format(time.RFC3339)
			}
			deliveryHub.BroadcastDelivery(mapping.ID, payload)
		})
	}

	opts := pipeline.Options{
		RecipientOrder:    cfg.HeaderOrder(),
		ProcessingEnabled: cfg.ProcessingEnabled,
		LogUnmatched:      cfg.LogUnmatched,
	}
	return pipeline.NewProcessor(opts, matcher, registry, loggedRepo, hooks, logger)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	spool, err := queue.NewSpool(cfg.SpoolPath)
	if err != nil {
		return err
	}

	deliveryHub := hub.NewHub(logger)
	go deliveryHub.Run()

	processor := buildProcessor(cfg, db, deliveryHub, logger)
	drain := worker.New(spool, processor, worker.Options{
		SleepInterval:    cfg.SleepDuration,
		ArchiveProcessed: cfg.ArchiveProcessed,
	}, logger)

	smtpBackend := smtpserver.NewBackend(spool, logger)
	smtpServer := smtpserver.NewServer(smtpBackend, &smtpserver.ServerConfig{
		Addr:   fmt.Sprintf(":%d", cfg.SMTPPort),
		Domain: cfg.SMTPDomain,
	})

	router := api.NewRouter(&api.RouterConfig{
		DB:             db,
		Spool:          spool,
		Hub:            deliveryHub,
		Logger:         logger,
		DefaultDomain:  cfg.DefaultDomain,
		APIKey:         cfg.APIKey,
		AllowedOrigins: cfg.Origins(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 3)
	go func() {
		logger.Info("SMTP server listening", slog.String("addr", smtpServer.Addr))
		if err := smtpServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("smtp server: %w", err)
		}
	}()
	go func() {
		logger.Info("API server listening", slog.Int("port", cfg.APIPort))
		if err := router.Start(fmt.Sprintf(":%d", cfg.APIPort)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		if err := drain.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("worker: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("component failed", slog.Any("error", err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", slog.Any("error", err))
	}
	if err := smtpServer.Close(); err != nil {
		logger.Error("smtp shutdown failed", slog.Any("error", err))
	}

	logger.Info("stopped")
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	spool, err := queue.NewSpool(cfg.SpoolPath)
	if err != nil {
		return err
	}

	processor := buildProcessor(cfg, db, nil, logger)
	drain := worker.New(spool, processor, worker.Options{
		SleepInterval:    cfg.SleepDuration,
		ArchiveProcessed: cfg.ArchiveProcessed,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := drain.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	var raw []byte
	if len(args) == 1 {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	processor := buildProcessor(cfg, db, nil, logger)
	msg, err := processor.Process(cmd.Context(), raw)
	if err != nil {
		return err
	}

	fmt.Printf("processed message %s from %s\n", msg.MessageID(), msg.Sender())
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	if cfg.IMAPHost == "" {
		return errors.New("IMAP_HOST is not configured")
	}

	spool, err := queue.NewSpool(cfg.SpoolPath)
	if err != nil {
		return err
	}

	fetcher := inbound.NewFetcher(spool, inbound.WithLogger(logger))
	spooled, err := fetcher.Fetch(cmd.Context(), inbound.Account{
		Host:     cfg.IMAPHost,
		Port:     cfg.IMAPPort,
		Username: cfg.IMAPUser,
		Password: cfg.IMAPPassword,
		Folder:   cfg.IMAPFolder,
		UseTLS:   cfg.IMAPUseTLS,
	})
	if err != nil {
		return err
	}

	logger.Info("mailbox drained", slog.Int("spooled", spooled))
	return nil
}
