package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type Redis struct {
	Addr     string        // e.g. redis:6379
	Password string
	CacheTTL time.Duration // staleness bound for account/destination caches
}

type NSQ struct {
	NsqdTCPAddr     string // e.g. nsqd:4150
	LookupHTTPAddr  string // e.g. http://nsqlookupd:4161
	DeliveriesTopic string // topic carrying delivery jobs
	DLQTopic        string // dead letter topic
	WorkerChannel   string // channel name consumed by workers
}

type RateLimit struct {
	Max    int           // requests allowed per window per token
	Window time.Duration // admission window length
}

type Worker struct {
	Concurrency     int           // max in-flight delivery jobs
	MaxAttempts     int           // attempt budget per (event, destination)
	BackoffBase     time.Duration // exponential backoff base, doubles per attempt
	JitterPercent   float64       // additive jitter fraction (0.0-1.0)
	DeliverTimeout  time.Duration // per outbound HTTP call
	ProcessingGrace time.Duration // age before a stuck processing attempt is reclaimed
	PublishDLQ      bool          // also publish exhausted jobs to the DLQ topic
	HTTPPort        string        // worker metrics/health port
}

type FakeReceiver struct {
	FailFirstN      int    // number of requests to fail initially
	FailStatus      int    // status code used for the simulated failures
	ResponseDelayMS int    // simulated response delay in milliseconds
	Port            string // server listen port
}

type Config struct {
	AppName      string
	HTTPPort     string // :8080
	DB           DB
	Redis        Redis
	NSQ          NSQ
	RateLimit    RateLimit
	Worker       Worker
	FakeReceiver FakeReceiver
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "hookline"),
		HTTPPort: getenv("HTTP_PORT", ":8080"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "hookline"),
		},
		Redis: Redis{
			Addr:     getenv("REDIS_ADDR", "redis:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			CacheTTL: getenvDuration("CACHE_TTL", time.Hour),
		},
		NSQ: NSQ{
			NsqdTCPAddr:     getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr:  getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			DeliveriesTopic: getenv("NSQ_DELIVERIES_TOPIC", "deliveries"),
			DLQTopic:        getenv("NSQ_DLQ_TOPIC", "deliveries_dlq"),
			WorkerChannel:   getenv("NSQ_WORKER_CHANNEL", "workers"),
		},
		RateLimit: RateLimit{
			Max:    getenvInt("RATE_LIMIT_MAX", 5),
			Window: getenvDuration("RATE_LIMIT_WINDOW", time.Second),
		},
		Worker: Worker{
			Concurrency:     getenvInt("WORKER_CONCURRENCY", 10),
			MaxAttempts:     getenvInt("MAX_ATTEMPTS", 3),
			BackoffBase:     getenvDuration("BACKOFF_BASE", time.Second),
			JitterPercent:   getenvFloat("BACKOFF_JITTER_PCT", 0),
			DeliverTimeout:  getenvDuration("DELIVER_TIMEOUT", 15*time.Second),
			ProcessingGrace: getenvDuration("PROCESSING_GRACE", 5*time.Minute),
			PublishDLQ:      getenvBool("PUBLISH_DLQ_TOPIC", false),
			HTTPPort:        ":" + getenv("WORKER_HTTP_PORT", "8083"),
		},
		FakeReceiver: FakeReceiver{
			FailFirstN:      getenvInt("FAIL_FIRST_N", 0),
			FailStatus:      getenvInt("FAIL_STATUS", 500),
			ResponseDelayMS: getenvInt("RESPONSE_DELAY_MS", 0),
			Port:            getenv("FAKE_RECEIVER_PORT", ":8081"),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
