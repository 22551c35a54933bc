package temporalx

import (
	"time"

	"github.com/yungbote/lumen-backend/internal/platform/envutil"
)

// Config selects the Temporal cluster. An empty Address disables Temporal and
// ingestion falls back to the in-process worker.
type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegisterNamespace bool
	RetentionDays         int

	DialTimeout time.Duration
	DialMaxWait time.Duration
	Backoff     time.Duration
	BackoffMax  time.Duration

	WorkerConcurrency int
	WorkerMaxWait     time.Duration
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "lumen"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "lumen-ingest"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:         envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),

		DialTimeout: envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5),
		DialMaxWait: envutil.Seconds("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60),
		Backoff:     envutil.Millis("TEMPORAL_DIAL_BACKOFF_MS", 250),
		BackoffMax:  envutil.Millis("TEMPORAL_DIAL_BACKOFF_MAX_MS", 5000),

		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 4),
		WorkerMaxWait:     envutil.Seconds("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60),
	}
}

func (c Config) Enabled() bool {
	return c.Address != ""
}

func (c Config) usesTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func (c Config) retention() time.Duration {
	days := c.RetentionDays
	if days < 1 {
		days = 7
	}
	if days > 365 {
		days = 365
	}
	return time.Duration(days) * 24 * time.Hour
}
