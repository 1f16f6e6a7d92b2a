package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/PlatformAI/internal/api"
	"github.com/BTreeMap/PlatformAI/internal/genai"
	"github.com/BTreeMap/PlatformAI/internal/lockfile"
	"github.com/BTreeMap/PlatformAI/internal/prompt"
	"github.com/BTreeMap/PlatformAI/internal/relay"
	"github.com/BTreeMap/PlatformAI/internal/store"
	"github.com/BTreeMap/PlatformAI/internal/twiliowhatsapp"
	"github.com/BTreeMap/PlatformAI/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PlatformAI state data
	DefaultStateDir = "/var/lib/platformai"
	// DefaultLogLevel is used when LOG_LEVEL is unset or invalid
	DefaultLogLevel = slog.LevelInfo
)

// version is reported by GET /. Overridden at build time with -ldflags "-X main.version=...".
var version = api.DefaultVersion

func main() {
	// Initialize structured logger
	initializeLogger(os.Getenv("LOG_LEVEL"))

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	if err := run(context.Background(), flags); err != nil {
		slog.Error("PlatformAI failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("PlatformAI exited successfully")
}

// Config holds environment configuration
type Config struct {
	OllamaHost    string
	Model         string
	APIKey        string
	Temperature   float64
	Timeout       time.Duration
	APIAddr       string
	StateDir      string
	DatabaseURL   string
	SystemPrompt  string
	CORSOrigins   string
	GenAIDebug    bool
	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
	TwilioWebhook string
}

// Flags holds command line flag values
type Flags struct {
	ollamaHost    string
	model         string
	apiKey        string
	temperature   float64
	timeout       time.Duration
	apiAddr       string
	stateDir      string
	dbDSN         string
	systemPrompt  string
	corsOrigins   string
	genaiDebug    bool
	twilioSID     string
	twilioToken   string
	twilioFrom    string
	twilioWebhook string
}

// initializeLogger installs a text handler at the level named by level.
func initializeLogger(level string) {
	lvl := DefaultLogLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = DefaultLogLevel
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	slog.Debug("logger initialized", "level", lvl)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		OllamaHost:    os.Getenv("OLLAMA_HOST"),
		Model:         os.Getenv("OLLAMA_MODEL"),
		APIKey:        os.Getenv("OLLAMA_API_KEY"),
		Temperature:   util.ParseFloatEnv("LLM_TEMPERATURE", genai.DefaultTemperature),
		Timeout:       util.ParseDurationEnv("LLM_TIMEOUT", genai.DefaultTimeout),
		APIAddr:       util.FirstEnv("API_ADDR", "PORT"),
		StateDir:      os.Getenv("PLATFORMAI_STATE_DIR"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SystemPrompt:  os.Getenv("SYSTEM_PROMPT_FILE"),
		CORSOrigins:   os.Getenv("CORS_ALLOWED_ORIGINS"),
		GenAIDebug:    util.ParseBoolEnv("GENAI_DEBUG", false),
		TwilioSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:    os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhook: os.Getenv("TWILIO_WEBHOOK_URL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PLATFORMAI_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// A bare port number from PORT becomes a listen address.
	if config.APIAddr != "" && !strings.Contains(config.APIAddr, ":") {
		config.APIAddr = ":" + config.APIAddr
	}

	slog.Debug("environment variables loaded",
		"OLLAMA_HOST", config.OllamaHost,
		"OLLAMA_MODEL", config.Model,
		"OLLAMA_API_KEY_SET", config.APIKey != "",
		"LLM_TEMPERATURE", config.Temperature,
		"LLM_TIMEOUT", config.Timeout,
		"API_ADDR", config.APIAddr,
		"PLATFORMAI_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SYSTEM_PROMPT_FILE", config.SystemPrompt,
		"CORS_ALLOWED_ORIGINS", config.CORSOrigins,
		"GENAI_DEBUG", config.GenAIDebug,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"TWILIO_AUTH_TOKEN_SET", config.TwilioToken != "")

	return config
}

// parseCommandLineFlags parses args with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	var flags Flags
	fs.StringVar(&flags.ollamaHost, "ollama-host", config.OllamaHost, "Ollama base URL (overrides $OLLAMA_HOST)")
	fs.StringVar(&flags.model, "model", config.Model, "model name (overrides $OLLAMA_MODEL)")
	fs.StringVar(&flags.apiKey, "api-key", config.APIKey, "backend API key (overrides $OLLAMA_API_KEY)")
	fs.Float64Var(&flags.temperature, "temperature", config.Temperature, "sampling temperature (overrides $LLM_TEMPERATURE)")
	fs.DurationVar(&flags.timeout, "timeout", config.Timeout, "backend call timeout (overrides $LLM_TIMEOUT)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR or $PORT)")
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for PlatformAI data (overrides $PLATFORMAI_STATE_DIR)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DatabaseURL, "receipts database DSN, Postgres URL or SQLite file (overrides $DATABASE_URL)")
	fs.StringVar(&flags.systemPrompt, "system-prompt", config.SystemPrompt, "system prompt file (overrides $SYSTEM_PROMPT_FILE)")
	fs.StringVar(&flags.corsOrigins, "cors-origins", config.CORSOrigins, "comma separated allowed origins (overrides $CORS_ALLOWED_ORIGINS)")
	fs.BoolVar(&flags.genaiDebug, "genai-debug", config.GenAIDebug, "write backend calls to <state-dir>/debug (overrides $GENAI_DEBUG)")
	flags.twilioSID = config.TwilioSID
	flags.twilioToken = config.TwilioToken
	flags.twilioFrom = config.TwilioFrom
	flags.twilioWebhook = config.TwilioWebhook

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	slog.Debug("flags parsed",
		"ollamaHost", flags.ollamaHost,
		"model", flags.model,
		"temperature", flags.temperature,
		"timeout", flags.timeout,
		"apiAddr", flags.apiAddr,
		"stateDir", flags.stateDir,
		"dbDSN_set", flags.dbDSN != "",
		"systemPrompt", flags.systemPrompt,
		"genaiDebug", flags.genaiDebug)

	return flags, nil
}

// run wires the modules together and serves until ctx ends or a signal arrives.
func run(ctx context.Context, flags Flags) error {
	slog.Info("Bootstrapping PlatformAI with configured modules")

	if usesSQLite(flags) {
		if err := os.MkdirAll(filepath.Dir(flags.dbDSN), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		lock, err := lockfile.Acquire(flags.stateDir, flags.apiAddr)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	gen, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	st, err := store.New(buildStoreOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}()

	relayOpts, err := buildRelayOptions(flags, st)
	if err != nil {
		return err
	}
	svc := relay.NewService(gen, relayOpts...)

	apiOpts, err := buildAPIOptions(flags)
	if err != nil {
		return err
	}

	slog.Debug("Final configuration", "state_dir", flags.stateDir, "dsn_set", flags.dbDSN != "", "api_addr", flags.apiAddr, "model", gen.Model())
	return api.NewServer(svc, gen, st, apiOpts...).Run(ctx)
}

// usesSQLite reports whether receipts go to an SQLite file.
func usesSQLite(flags Flags) bool {
	return flags.dbDSN != "" && store.DetectDSNType(flags.dbDSN) == store.DSNTypeSQLite
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	genaiOpts := []genai.Option{
		genai.WithTemperature(flags.temperature),
		genai.WithTimeout(flags.timeout),
	}
	if flags.ollamaHost != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(flags.ollamaHost))
	}
	if flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(flags.model))
	}
	if flags.apiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(flags.apiKey))
	}
	if flags.genaiDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true), genai.WithStateDir(flags.stateDir))
	}
	return genaiOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(flags.dbDSN) == store.DSNTypePostgres {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		storeOpts = append(storeOpts, store.WithPostgresDSN(flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(flags.dbDSN))
	}
	return storeOpts
}

// buildRelayOptions constructs relay options, loading the system prompt file if set.
func buildRelayOptions(flags Flags, receipts store.ReceiptRepo) ([]relay.Option, error) {
	text, err := prompt.Load(flags.systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to load system prompt: %w", err)
	}
	return []relay.Option{
		relay.WithSystemPrompt(text),
		relay.WithReceipts(receipts),
	}, nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) ([]api.Option, error) {
	apiOpts := []api.Option{api.WithVersion(version)}
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	if origins := splitOrigins(flags.corsOrigins); len(origins) > 0 {
		apiOpts = append(apiOpts, api.WithCORSOrigins(origins))
	}

	wa, err := buildTwilioClient(flags)
	switch {
	case errors.Is(err, twiliowhatsapp.ErrMissingCredentials):
		slog.Info("Twilio credentials not set, WhatsApp channel disabled")
	case err != nil:
		return nil, fmt.Errorf("failed to create Twilio client: %w", err)
	default:
		apiOpts = append(apiOpts, api.WithWhatsApp(wa, wa))
		if flags.twilioWebhook != "" {
			apiOpts = append(apiOpts, api.WithWebhookURL(flags.twilioWebhook))
		}
	}
	return apiOpts, nil
}

// buildTwilioClient returns ErrMissingCredentials when the channel is not configured.
func buildTwilioClient(flags Flags) (*twiliowhatsapp.Client, error) {
	return twiliowhatsapp.NewClient(
		twiliowhatsapp.WithAccountSID(flags.twilioSID),
		twiliowhatsapp.WithAuthToken(flags.twilioToken),
		twiliowhatsapp.WithFromWhats(flags.twilioFrom),
	)
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
