package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/careops/services/automation/config"
	"example.com/careops/services/automation/internal/api"
	"example.com/careops/services/automation/internal/cache"
	"example.com/careops/services/automation/internal/channels"
	"example.com/careops/services/automation/internal/messaging"
	"example.com/careops/services/automation/internal/metrics"
	"example.com/careops/services/automation/internal/repositories"
	"example.com/careops/services/automation/internal/search"
	"example.com/careops/services/automation/internal/services"
	"example.com/careops/services/automation/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for public bookings and workspace administration`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}

	// Initialize cache
	var scheduleCache services.ScheduleCache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	} else {
		scheduleCache = redisCache
		defer redisCache.Close()
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize the event bus. The API only publishes; a dead bus degrades
	// to bookings without automation, not to refused bookings.
	var publisher services.EventPublisher
	eventBus, err := messaging.NewEventBus(cfg.Azure)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize event bus, domain events will be dropped")
		metricsCollector.SetHealth("event_bus", false)
	} else {
		publisher = eventBus
		metricsCollector.SetHealth("event_bus", true)
		defer eventBus.Close()
	}

	// The API needs the calendar connector only to remove events for
	// cancelled bookings.
	var calendar channels.CalendarConnector
	if sbClient, err := messaging.NewClient(cfg.Azure); err == nil {
		if calendarQueue, err := messaging.NewQueueSender(sbClient, cfg.Azure.CalendarQueue); err == nil {
			calendar = channels.NewQueueCalendar(calendarQueue)
		}
	}

	// Initialize repositories and services
	bookingService := services.NewBookingService(
		repositories.NewWorkspaceRepository(db),
		repositories.NewContactRepository(db),
		repositories.NewServiceRepository(db),
		repositories.NewBusinessHourRepository(db),
		repositories.NewBookingRepository(db),
		repositories.NewInventoryRepository(db),
		calendar,
		publisher,
		scheduleCache,
		metricsCollector,
	)

	var searcher services.LogSearcher
	if elasticClient != nil {
		searcher = elasticClient
	}
	automationService := services.NewAutomationService(
		repositories.NewRuleRepository(db),
		repositories.NewLogRepository(db),
		repositories.NewSuppressionRepository(db),
		repositories.NewFormRepository(db),
		repositories.NewContactRepository(db),
		publisher,
		searcher,
		metricsCollector,
		cfg.PublicBaseURL,
		cfg.Engine.SuppressionTTL,
	)

	// Initialize and start the server
	server := api.NewServer(cfg, bookingService, automationService, metricsCollector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
