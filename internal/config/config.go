package config // package config loads application configuration from environment variables

import (
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Database and broker settings are optional: an
// empty DBHost keeps history in memory and an empty AMQPURL disables event
// publishing.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	JWTSecret    string // secret used to verify (and, in tooling, sign) JWTs
	AccessTTLMin int    // access token time-to-live in minutes

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address; empty means in-memory history
	DBPort string // database port number
	DBName string // database name

	AMQPURL         string // RabbitMQ URL; empty disables publishing
	AuditConsumer   bool   // run the audit log consumer in-process
	AuditLogDir     string // directory of inventory.log
	MetricsDisabled bool   // hide /metrics
}

// Load reads .env (if present) and the process environment and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	cfg := Config{
		Env:             envStr("APP_ENV", "dev"),
		Port:            must("APP_PORT"),
		JWTSecret:       must("JWT_SECRET"),
		AccessTTLMin:    envInt("ACCESS_TOKEN_TTL_MIN", 60),
		DBUser:          os.Getenv("DB_USER"),
		DBPass:          os.Getenv("DB_PASS"),
		DBHost:          os.Getenv("DB_HOST"),
		DBPort:          envStr("DB_PORT", "3306"),
		DBName:          os.Getenv("DB_NAME"),
		AMQPURL:         AMQPURL(),
		AuditConsumer:   envBool("AUDIT_CONSUMER_ENABLED", false),
		AuditLogDir:     envStr("AUDIT_LOG_DIR", "logs"),
		MetricsDisabled: envBool("METRICS_DISABLED", false),
	}
	if cfg.DBHost != "" {
		// once a database is configured, user and name become mandatory
		cfg.DBUser = must("DB_USER")
		cfg.DBName = must("DB_NAME")
	}
	return cfg
}

// UseDatabase reports whether history should be persisted in MySQL.
func (c Config) UseDatabase() bool { return c.DBHost != "" }

// AMQPURL returns the broker URL from RABBITMQ_URL or AMQP_URL.
func AMQPURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// AuthSettings reads only the token signing settings.  Tooling that mints
// tokens uses it without a full server environment.
func AuthSettings() (secret string, ttlMin int) {
	_ = godotenv.Load()
	return os.Getenv("JWT_SECRET"), envInt("ACCESS_TOKEN_TTL_MIN", 60)
}
