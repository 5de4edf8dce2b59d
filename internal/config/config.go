package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort  string
	LogLevel string

	DBDriver   string
	SQLitePath string
	MySQLHost  string
	MySQLPort  string
	MySQLDB    string
	MySQLUser  string
	MySQLPass  string

	RedisAddr string
	RedisPass string
	RedisDB   int

	IdempTTLSecs int

	LoanAPIBaseURL string
	LoanAPIToken   string
	HTTPTimeout    time.Duration

	MaxRetryCount     int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	DispatchInterval  time.Duration
	WorkerConcurrency int
	RetrySweepEvery   time.Duration

	ConnectivityProbeURL string
	ConnectivityInterval time.Duration

	UploadTempDir       string
	CompressTargetBytes int64
	CleanupAfter        time.Duration
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func seconds(k string, d int) time.Duration { return time.Duration(getint(k, d)) * time.Second }

// Load reads the environment. A .env file in the working directory is
// applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		AppPort:  getenv("APP_PORT", "8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		DBDriver:   getenv("DB_DRIVER", "sqlite"),
		SQLitePath: getenv("SQLITE_PATH", "loan_queue.db"),
		MySQLHost:  getenv("MYSQL_HOST", "mysql"),
		MySQLPort:  getenv("MYSQL_PORT", "3306"),
		MySQLDB:    getenv("MYSQL_DB", "loan_queue"),
		MySQLUser:  getenv("MYSQL_USER", "loan_queue"),
		MySQLPass:  getenv("MYSQL_PASS", "loan_queue"),

		RedisAddr: getenv("REDIS_ADDR", "redis:6379"),
		RedisPass: getenv("REDIS_PASSWORD", ""),
		RedisDB:   getint("REDIS_DB", 0),

		IdempTTLSecs: getint("IDEMPOTENCY_TTL_SECONDS", 300),

		LoanAPIBaseURL: getenv("LOAN_API_BASE_URL", "http://localhost:9000"),
		LoanAPIToken:   getenv("LOAN_API_TOKEN", ""),
		HTTPTimeout:    seconds("HTTP_TIMEOUT_SECONDS", 30),

		MaxRetryCount:     getint("MAX_RETRY_COUNT", 3),
		BackoffBase:       seconds("BACKOFF_BASE_SECONDS", 30),
		BackoffMax:        seconds("BACKOFF_MAX_SECONDS", 3600),
		DispatchInterval:  time.Duration(getint("DISPATCH_INTERVAL_MS", 1000)) * time.Millisecond,
		WorkerConcurrency: getint("WORKER_CONCURRENCY", 4),
		RetrySweepEvery:   seconds("RETRY_SWEEP_SECONDS", 900),

		ConnectivityProbeURL: getenv("CONNECTIVITY_PROBE_URL", ""),
		ConnectivityInterval: seconds("CONNECTIVITY_INTERVAL_SECONDS", 10),

		UploadTempDir:       getenv("UPLOAD_TEMP_DIR", os.TempDir()),
		CompressTargetBytes: int64(getint("COMPRESS_TARGET_BYTES", 1<<20)),
		CleanupAfter:        time.Duration(getint("CLEANUP_AFTER_HOURS", 24)) * time.Hour,
	}
	if c.ConnectivityProbeURL == "" {
		c.ConnectivityProbeURL = c.LoanAPIBaseURL + "/health"
	}
	return c
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	case "mysql":
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	default:
		return fmt.Errorf("invalid DB_DRIVER %q (want sqlite or mysql)", c.DBDriver)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.LoanAPIBaseURL == "" {
		return errors.New("missing LOAN_API_BASE_URL")
	}
	if c.MaxRetryCount < 0 {
		return fmt.Errorf("MAX_RETRY_COUNT must be >= 0, got %d", c.MaxRetryCount)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 1, got %d", c.WorkerConcurrency)
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "mysql" {
		return c.MySQLDSN()
	}
	return c.SQLitePath
}

func (c *Config) IdempotencyTTL() time.Duration { return time.Duration(c.IdempTTLSecs) * time.Second }
