package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/healthtipsdaily/tipline/internal/api"
	"github.com/healthtipsdaily/tipline/internal/genai"
	"github.com/healthtipsdaily/tipline/internal/lockfile"
	"github.com/healthtipsdaily/tipline/internal/store"
	"github.com/healthtipsdaily/tipline/internal/util"
	"github.com/healthtipsdaily/tipline/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Tipline state data
	DefaultStateDir = "/var/lib/tipline"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "tipline.db"
	// ProviderWhatsmeow sends WhatsApp messages through a linked device.
	ProviderWhatsmeow = "whatsmeow"
	// ProviderTwilio sends WhatsApp messages through the Twilio REST API.
	ProviderTwilio = "twilio"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One instance per state directory; the flock dies with the process.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping Tipline with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr, "provider", *flags.provider)
	if err := api.Run(waOpts, storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("Tipline failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Tipline exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	OpenAIKey       string
	OpenAIBaseURL   string
	OpenAIModel     string
	APIAddr         string
	SweepCron       string
	VerifyToken     string
	DiscordBotToken string
	Provider        string
	NumericCode     bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput        *string
	numeric         *bool
	stateDir        *string
	dbDSN           *string
	openaiKey       *string
	openaiBaseURL   *string
	openaiModel     *string
	apiAddr         *string
	sweepCron       *string
	verifyToken     *string
	discordBotToken *string
	provider        *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        util.EnvOrDefault("TIPLINE_STATE_DIR", DefaultStateDir),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:     os.Getenv("OPENAI_MODEL"),
		APIAddr:         os.Getenv("API_ADDR"),
		SweepCron:       os.Getenv("DEFAULT_SCHEDULE"),
		VerifyToken:     os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		DiscordBotToken: os.Getenv("DISCORD_BOT_TOKEN"),
		Provider:        util.EnvOrDefault("WHATSAPP_PROVIDER", ProviderWhatsmeow),
		NumericCode:     util.ParseBoolEnv("TIPLINE_NUMERIC_CODE", false),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"TIPLINE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_BASE_URL", config.OpenAIBaseURL,
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"DEFAULT_SCHEDULE", config.SweepCron,
		"WHATSAPP_VERIFY_TOKEN_SET", config.VerifyToken != "",
		"DISCORD_BOT_TOKEN_SET", config.DiscordBotToken != "",
		"WHATSAPP_PROVIDER", config.Provider)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:        flag.String("qr-output", "", "path to write login QR code"),
		numeric:         flag.Bool("numeric-code", config.NumericCode, "use numeric login code instead of QR code (overrides $TIPLINE_NUMERIC_CODE)"),
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for Tipline data (overrides $TIPLINE_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN for the store and WhatsApp device (overrides $DATABASE_URL)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiBaseURL:   flag.String("openai-base-url", config.OpenAIBaseURL, "OpenAI-compatible gateway base URL, e.g. OpenRouter (overrides $OPENAI_BASE_URL)"),
		openaiModel:     flag.String("openai-model", config.OpenAIModel, "chat model override (overrides $OPENAI_MODEL)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sweepCron:       flag.String("sweep-cron", config.SweepCron, "cron schedule for the tip delivery sweep (overrides $DEFAULT_SCHEDULE)"),
		verifyToken:     flag.String("whatsapp-verify-token", config.VerifyToken, "WhatsApp webhook verification token (overrides $WHATSAPP_VERIFY_TOKEN)"),
		discordBotToken: flag.String("discord-bot-token", config.DiscordBotToken, "Discord bot token for outbound delivery (overrides $DISCORD_BOT_TOKEN)"),
		provider:        flag.String("whatsapp-provider", config.Provider, "outbound WhatsApp provider: whatsmeow or twilio (overrides $WHATSAPP_PROVIDER)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"sweepCron", *flags.sweepCron,
		"provider", *flags.provider)

	// Follow a relocated state directory when the DSN was left at its default
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp client configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.dbDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	}
	return waOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.openaiBaseURL))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.sweepCron != "" {
		apiOpts = append(apiOpts, api.WithSweepCron(*flags.sweepCron))
	}
	if *flags.verifyToken != "" {
		apiOpts = append(apiOpts, api.WithWhatsAppVerifyToken(*flags.verifyToken))
	}
	if *flags.discordBotToken != "" {
		apiOpts = append(apiOpts, api.WithDiscordBotToken(*flags.discordBotToken))
	}
	if *flags.provider == ProviderTwilio {
		// Twilio credentials come from TWILIO_* environment variables.
		apiOpts = append(apiOpts, api.WithTwilioSender())
	}
	return apiOpts
}
