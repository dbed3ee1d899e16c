package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/StayPipe/StayPipe/internal/flow"
	"github.com/StayPipe/StayPipe/internal/genai"
	"github.com/StayPipe/StayPipe/internal/guest"
	"github.com/StayPipe/StayPipe/internal/lang"
	"github.com/StayPipe/StayPipe/internal/lockfile"
	"github.com/StayPipe/StayPipe/internal/messaging"
	"github.com/StayPipe/StayPipe/internal/scheduler"
	"github.com/StayPipe/StayPipe/internal/store"
	"github.com/StayPipe/StayPipe/internal/twiliowhatsapp"
	"github.com/StayPipe/StayPipe/internal/util"
	"github.com/StayPipe/StayPipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for StayPipe state data.
	DefaultStateDir = "/var/lib/staypipe"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "staypipe.db"
	// DefaultScopeID is the deployment scope when none is configured.
	DefaultScopeID = 1
	// StaleFlowMaxAge is how long an unanswered sub-flow may sit before the
	// maintenance job returns the conversation to idle.
	StaleFlowMaxAge = 2 * time.Hour
	// StaleFlowCronExpr schedules the stale sub-flow cleanup.
	StaleFlowCronExpr = "*/30 * * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		slog.Error("StayPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("StayPipe exited successfully")
}

// Config holds environment configuration.
type Config struct {
	DatabaseURL      string
	WhatsAppDSN      string
	StateDir         string
	OpenAIKey        string
	Channel          string
	WebhookAddr      string
	ScopeID          int64
	ResponderEnabled bool
}

// Flags holds command line flag values.
type Flags struct {
	qrOutput         *string
	numeric          *bool
	stateDir         *string
	dbDSN            *string
	whatsappDSN      *string
	openaiKey        *string
	channel          *string
	webhookAddr      *string
	scopeID          *int64
	responderEnabled *bool
}

// initializeLogger sets up structured logging with debug level.
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and
// an optional .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:         os.Getenv("STAYPIPE_STATE_DIR"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		Channel:          os.Getenv("STAYPIPE_CHANNEL"),
		WebhookAddr:      os.Getenv("TWILIO_WEBHOOK_ADDR"),
		ScopeID:          DefaultScopeID,
		ResponderEnabled: util.ParseBoolEnv("STAYPIPE_RESPONDER_ENABLED", true),
	}

	if raw := os.Getenv("STAYPIPE_SCOPE_ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			config.ScopeID = id
		} else {
			slog.Warn("Invalid STAYPIPE_SCOPE_ID, using default", "raw", raw, "default", DefaultScopeID)
		}
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.Channel == "" {
		config.Channel = "whatsapp"
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlitePath", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, "whatsmeow.db")
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"STAYPIPE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"STAYPIPE_CHANNEL", config.Channel,
		"STAYPIPE_SCOPE_ID", config.ScopeID)

	return config
}

// parseCommandLineFlags parses command line arguments with environment
// defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:         flag.String("qr-output", "", "path to write login QR code"),
		numeric:          flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:         flag.String("state-dir", config.StateDir, "state directory for StayPipe data (overrides $STAYPIPE_STATE_DIR)"),
		dbDSN:            flag.String("db-dsn", config.DatabaseURL, "database DSN for the conversation store (overrides $DATABASE_URL)"),
		whatsappDSN:      flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:        flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		channel:          flag.String("channel", config.Channel, "message channel: whatsapp or twilio (overrides $STAYPIPE_CHANNEL)"),
		webhookAddr:      flag.String("twilio-webhook-addr", config.WebhookAddr, "listen address for the Twilio inbound webhook (overrides $TWILIO_WEBHOOK_ADDR)"),
		scopeID:          flag.Int64("scope-id", config.ScopeID, "deployment scope id (overrides $STAYPIPE_SCOPE_ID)"),
		responderEnabled: flag.Bool("responder-enabled", config.ResponderEnabled, "enable the generative fallback responder (overrides $STAYPIPE_RESPONDER_ENABLED)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSNSet", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"channel", *flags.channel,
		"scopeID", *flags.scopeID)

	return flags
}

// ensureDirectoriesExist creates the state directory for file-based storage.
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	return nil
}

// buildStore opens the conversation store matching the DSN type.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dbPath", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildWhatsAppOptions constructs WhatsApp client options.
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
	}
	return waOpts
}

// buildGenAIOptions constructs responder options.
func buildGenAIOptions(flags Flags) []genai.Option {
	genaiOpts := []genai.Option{genai.WithEnabled(*flags.responderEnabled)}
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildMessagingService creates the transport for the configured channel.
// For Twilio it also mounts the inbound webhook.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch *flags.channel {
	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		service := messaging.NewTwilioService(client)
		addr := *flags.webhookAddr
		if addr == "" {
			addr = ":8081"
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/twilio/webhook", service.WebhookHandler)
		go func() {
			slog.Info("Twilio webhook listening", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				slog.Error("Twilio webhook server failed", "error", err)
			}
		}()
		return service, nil
	case "whatsapp":
		client, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		return nil, fmt.Errorf("unknown channel %q (expected whatsapp or twilio)", *flags.channel)
	}
}

// run wires the store, the flow engine, and the transport, then blocks
// until a termination signal arrives.
func run(flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	service, err := buildMessagingService(flags)
	if err != nil {
		return err
	}

	detector := lang.NewDetector()
	states := flow.NewStateManager(st)
	catalog := flow.NewCatalog(nil)
	guests := guest.NewService(st)
	responder := genai.NewResponder(buildGenAIOptions(flags)...)

	engine := flow.NewEngine(
		st,
		detector,
		states,
		flow.NewExtractor(st, flow.NewParser(), nil),
		flow.NewGuestIdentification(st, guests, states, catalog),
		flow.NewItemCreation(st, states, catalog),
		catalog,
		flow.WithResponder(responder),
	)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(StaleFlowCronExpr, func() {
		states.ResetStaleSubFlows(StaleFlowMaxAge)
	}); err != nil {
		return fmt.Errorf("failed to schedule stale sub-flow cleanup: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer service.Stop()

	router := messaging.NewRouter(service, engine, *flags.scopeID)
	router.Start(ctx)

	slog.Info("StayPipe running", "channel", *flags.channel, "scopeID", *flags.scopeID)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("Shutdown signal received")
	return nil
}
