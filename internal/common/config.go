package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Reader    ReaderConfig
	Knowledge KnowledgeConfig
	Quotes    QuotesConfig
	Log       LogConfig
}

// DatabaseConfig holds database-related configuration.
// An empty DSN keeps quotes in memory only.
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// ReaderConfig holds document reader configuration
type ReaderConfig struct {
	PDFBackend    string // "poppler" | "fitz"
	TessdataDir   string
	TesseractLang string
	DPI           int
	MinPageChars  int
	MaxPages      int
	Timeout       time.Duration
	CADEnabled    bool
	RequireOCR    bool
}

// KnowledgeConfig holds knowledge index configuration
type KnowledgeConfig struct {
	IndexPath   string
	CorpusDir   string
	Watch       bool
	Debounce    time.Duration
	DefaultTopK int
}

// QuotesConfig holds estimation and session configuration
type QuotesConfig struct {
	TablesPath     string
	ReferencesTopK int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is read first when present; real
// environment variables take precedence over it.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Reader: ReaderConfig{
			PDFBackend:    getEnv("READER_PDF_BACKEND", "poppler"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			DPI:           getEnvAsInt("READER_DPI", 400),
			MinPageChars:  getEnvAsInt("READER_MIN_PAGE_CHARS", 40),
			MaxPages:      getEnvAsInt("READER_MAX_PAGES", 0),
			Timeout:       getEnvAsDuration("READER_TIMEOUT", 90*time.Second),
			CADEnabled:    getEnvAsBool("READER_CAD_ENABLED", true),
			RequireOCR:    getEnvAsBool("READER_REQUIRE_OCR", false),
		},
		Knowledge: KnowledgeConfig{
			IndexPath:   getEnv("KNOWLEDGE_INDEX", "data/knowledge.db"),
			CorpusDir:   getEnv("KNOWLEDGE_CORPUS_DIR", "data/reference"),
			Watch:       getEnvAsBool("KNOWLEDGE_WATCH", false),
			Debounce:    getEnvAsDuration("KNOWLEDGE_WATCH_DEBOUNCE", 2*time.Second),
			DefaultTopK: getEnvAsInt("KNOWLEDGE_TOP_K", 5),
		},
		Quotes: QuotesConfig{
			TablesPath:     getEnv("QUOTE_TABLES", ""),
			ReferencesTopK: getEnvAsInt("QUOTE_REFERENCES_TOP_K", 5),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return InvalidArgument("GRPC_ADDR", "is required")
	}
	switch strings.ToLower(c.Reader.PDFBackend) {
	case "poppler", "fitz":
	default:
		return InvalidArgument("READER_PDF_BACKEND", "must be one of poppler, fitz")
	}
	if c.Reader.Timeout <= 0 {
		return InvalidArgument("READER_TIMEOUT", "must be positive")
	}
	if c.Reader.DPI <= 0 {
		return InvalidArgument("READER_DPI", "must be positive")
	}
	if c.Knowledge.IndexPath == "" {
		return InvalidArgument("KNOWLEDGE_INDEX", "is required")
	}
	if c.Knowledge.DefaultTopK <= 0 {
		return InvalidArgument("KNOWLEDGE_TOP_K", "must be positive")
	}
	if c.Quotes.ReferencesTopK <= 0 {
		return InvalidArgument("QUOTE_REFERENCES_TOP_K", "must be positive")
	}
	return nil
}
