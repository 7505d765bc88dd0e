package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/careops/services/automation/config"
	"example.com/careops/services/automation/internal/automation"
	"example.com/careops/services/automation/internal/channels"
	"example.com/careops/services/automation/internal/messaging"
	"example.com/careops/services/automation/internal/metrics"
	"example.com/careops/services/automation/internal/models"
	"example.com/careops/services/automation/internal/repositories"
	"example.com/careops/services/automation/internal/search"
	"example.com/careops/services/automation/internal/services"
	"example.com/careops/services/automation/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker: consumes domain events, executes automation rules, fires scheduled jobs and runs the booking sweeps`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}
	defer tracer.Close()

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// The worker both consumes the event queue and publishes sweep events
	// back onto it.
	eventBus, err := messaging.NewEventBus(cfg.Azure)
	if err != nil {
		return err
	}
	defer eventBus.Close()
	metricsCollector.SetHealth("event_bus", true)

	// Outbound channel senders share one Service Bus client.
	sbClient, err := messaging.NewClient(cfg.Azure)
	if err != nil {
		return err
	}
	emailQueue, err := messaging.NewQueueSender(sbClient, cfg.Azure.EmailQueue)
	if err != nil {
		return err
	}
	whatsappQueue, err := messaging.NewQueueSender(sbClient, cfg.Azure.WhatsAppQueue)
	if err != nil {
		return err
	}
	calendarQueue, err := messaging.NewQueueSender(sbClient, cfg.Azure.CalendarQueue)
	if err != nil {
		return err
	}

	emailSender := channels.WithTimeout(
		channels.NewQueueSender("email", emailQueue), cfg.Engine.ChannelTimeout)
	whatsappSender := channels.WithTimeout(
		channels.NewQueueSender("whatsapp", whatsappQueue), cfg.Engine.ChannelTimeout)
	calendar := channels.NewQueueCalendar(calendarQueue)

	// Repositories
	ruleRepo := repositories.NewRuleRepository(db)
	logRepo := repositories.NewLogRepository(db)
	jobRepo := repositories.NewJobRepository(db)
	suppressionRepo := repositories.NewSuppressionRepository(db)
	bookingRepo := repositories.NewBookingRepository(db)
	inventoryRepo := repositories.NewInventoryRepository(db)
	formRepo := repositories.NewFormRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)

	// Log rows are mirrored into Elasticsearch when it is available.
	var logs automation.LogAppender = logRepo
	if elasticClient != nil {
		logs = automation.NewIndexedLogStore(logRepo, ruleRepo, elasticClient)
	}

	// The engine: executor behind the dispatcher, poller draining the
	// persisted schedule.
	executor := automation.NewExecutor(automation.ExecutorDeps{
		Email:         emailSender,
		WhatsApp:      whatsappSender,
		Calendar:      calendar,
		Notifications: notificationRepo,
		Forms:         formRepo,
		SuppressSet:   suppressionRepo,
		Suppression:   suppressionRepo,
		Inventory:     inventoryRepo,
		Bookings:      bookingRepo,
		Rules:         ruleRepo,
		Logs:          logs,
		Retry:         automation.DefaultRetryPolicy(cfg.Engine.RetryAttempts, cfg.Engine.RetryBackoff),
		PublicBaseURL: cfg.PublicBaseURL,
		SuppressTTL:   cfg.Engine.SuppressionTTL,
		Collector:     metricsCollector,
	})

	dispatcher := automation.NewDispatcher(
		ruleRepo, logs, jobRepo, suppressionRepo, executor,
		cfg.Engine.SuppressionTTL, metricsCollector)

	poller := automation.NewPoller(jobRepo, ruleRepo, executor, logs, metricsCollector)

	sweeps := services.NewSweepService(bookingRepo, eventBus, metricsCollector, cfg.Engine.ReminderLeadTime)

	// Consume the event queue.
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.EventQueue).Msg("Starting event queue processor")
		return eventBus.ProcessMessages(ctx, func(ctx context.Context, event models.DomainEvent) error {
			return dispatcher.Dispatch(ctx, event)
		})
	})

	// Run the periodic jobs: due-job poller plus the two sweeps.
	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Engine.PollInterval),
			gocron.NewTask(func() {
				for {
					fired, err := poller.Tick(ctx)
					if err != nil {
						log.Error().Err(err).Msg("Due-job poll failed")
						return
					}
					// A full batch means more jobs may already be due.
					if fired < automation.DefaultClaimBatch {
						return
					}
				}
			}),
		)
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Engine.SweepInterval),
			gocron.NewTask(func() {
				if _, err := sweeps.ReminderSweep(ctx); err != nil {
					log.Error().Err(err).Msg("Reminder sweep failed")
				}
				if _, err := sweeps.AutoCompleteSweep(ctx); err != nil {
					log.Error().Err(err).Msg("Auto-complete sweep failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		log.Info().
			Dur("poll_interval", cfg.Engine.PollInterval).
			Dur("sweep_interval", cfg.Engine.SweepInterval).
			Msg("Starting scheduler")
		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
