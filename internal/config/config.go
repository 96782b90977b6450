package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var defaultSources = []string{"CI", "EO", "IO", "OHTS", "OIAK", "OPV", "OPZ", "reditel", "UVV"}

type Config struct {
	DataDir       string
	Sources       []string
	SourcesFile   string
	GeneratedFile string
	LogLevel      string

	SupabaseURL         string
	SupabaseKey         string
	StorageBucket       string
	StorageRateLimitRPS int
	StorageTimeoutMs    int

	FHIRServer       string
	FHIRTimeoutMs    int
	FHIRTokenURL     string
	FHIRClientID     string
	FHIRClientSecret string
	FHIRScopes       []string

	DBDriver           string
	DBConnectionString string
	DBHost             string
	DBName             string
	DBUser             string
	DBPassword         string
	DBPort             int
	DBSSLMode          string
	DBChannelBinding   string
	DBPath             string

	MockEmailDomain string

	WatchIntervalSec int
	WatchPush        bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DataDir:       getEnv("DATA_DIR", filepath.Join(cwd, "current")),
		Sources:       getEnvList("SOURCES", append([]string(nil), defaultSources...)),
		SourcesFile:   getEnv("SOURCES_FILE", ""),
		GeneratedFile: getEnv("GENERATED_FILE", "generated_resources.json"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		SupabaseURL:         getEnv("SUPABASE_URL", ""),
		SupabaseKey:         getEnv("SUPABASE_KEY", ""),
		StorageBucket:       getEnv("SUPABASE_BUCKET", "zhodnoceni_procesu"),
		StorageRateLimitRPS: getEnvInt("STORAGE_RATE_LIMIT_RPS", 5),
		StorageTimeoutMs:    getEnvInt("STORAGE_TIMEOUT_MS", 30000),

		FHIRServer:       getEnv("FHIR_SERVER", ""),
		FHIRTimeoutMs:    getEnvInt("FHIR_TIMEOUT_MS", 60000),
		FHIRTokenURL:     getEnv("FHIR_TOKEN_URL", ""),
		FHIRClientID:     getEnv("FHIR_CLIENT_ID", ""),
		FHIRClientSecret: getEnv("FHIR_CLIENT_SECRET", ""),
		FHIRScopes:       getEnvList("FHIR_SCOPES", nil),

		DBConnectionString: getEnv("DB_CONNECTION_STRING", ""),
		DBHost:             getEnv("DB_HOST", ""),
		DBName:             getEnv("DB_NAME", "postgres"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBPort:             getEnvInt("DB_PORT", 5432),
		DBSSLMode:          getEnv("DB_SSLMODE", "require"),
		DBChannelBinding:   getEnv("DB_CHANNELBINDING", "disable"),
		DBPath:             getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),

		MockEmailDomain: getEnv("MOCK_EMAIL_DOMAIN", "fnbrno.cz"),

		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 900),
		WatchPush:        getEnvBool("WATCH_PUSH", false),
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(getEnv("DB_DRIVER", "")))
	if cfg.DBDriver == "" {
		cfg.DBDriver = DriverSQLite
		if cfg.DBConnectionString != "" || cfg.DBHost != "" {
			cfg.DBDriver = DriverPostgres
		}
	}

	if cfg.SourcesFile != "" {
		manifest, err := LoadManifest(cfg.SourcesFile)
		if err != nil {
			return Config{}, err
		}
		manifest.Apply(&cfg)
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// PostgresConnString returns DB_CONNECTION_STRING when set, otherwise a URL
// assembled from the individual DB_* settings.
func (c Config) PostgresConnString() (string, error) {
	if c.DBConnectionString != "" {
		return c.DBConnectionString, nil
	}
	if err := c.Require("DB_HOST", c.DBHost); err != nil {
		return "", err
	}
	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	if c.DBChannelBinding != "" {
		q.Set("channel_binding", c.DBChannelBinding)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
