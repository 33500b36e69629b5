package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/identity-sync/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c, err := Load([]string{".env", ".env.local"})
	if err != nil {
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"identity_sync"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"8"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.Password, d.SSLMode,
	)
}

type KafkaOptions struct {
	Brokers  string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	GroupID  string `env:"KAFKA_GROUP_ID" envDefault:"identity-sync"`
	ClientID string `env:"KAFKA_CLIENT_ID" envDefault:"identity-sync"`

	IdentityTopic   string `env:"KAFKA_TOPIC_IDENTITY" envDefault:"person.identity-changed.v1"`
	NoticeTopic     string `env:"KAFKA_TOPIC_NOTICE" envDefault:"sickleave.notice.v1"`
	EmploymentTopic string `env:"KAFKA_TOPIC_EMPLOYMENT" envDefault:"employment.changed.v1"`
	NameTopic       string `env:"KAFKA_TOPIC_NAME" envDefault:"person.name-changed.v1"`
}

// BrokerList splits KAFKA_BROKERS on commas and whitespace.
func (k *KafkaOptions) BrokerList() []string {
	return strings.FieldsFunc(k.Brokers, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
}

func (k *KafkaOptions) Validate() error {
	if len(k.BrokerList()) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must list at least one broker")
	}
	if strings.TrimSpace(k.GroupID) == "" {
		return fmt.Errorf("KAFKA_GROUP_ID is required")
	}
	if strings.TrimSpace(k.IdentityTopic) == "" {
		return fmt.Errorf("KAFKA_TOPIC_IDENTITY is required")
	}
	return nil
}

type IngestionOptions struct {
	PollTimeout time.Duration `env:"INGESTION_POLL_TIMEOUT" envDefault:"5s"`
	Backoff     time.Duration `env:"INGESTION_BACKOFF" envDefault:"30s"`
	// MaxBackoff above Backoff turns the fixed wait into an exponential one.
	MaxBackoff    time.Duration `env:"INGESTION_MAX_BACKOFF" envDefault:"0"`
	Jitter        time.Duration `env:"INGESTION_JITTER" envDefault:"0"`
	ProgressEvery time.Duration `env:"INGESTION_PROGRESS_EVERY" envDefault:"10s"`
}

func (i *IngestionOptions) Validate() error {
	if i.PollTimeout < time.Second || i.PollTimeout > 10*time.Second {
		return fmt.Errorf("INGESTION_POLL_TIMEOUT must be between 1s and 10s, got %s", i.PollTimeout)
	}
	if i.Backoff <= 0 {
		return fmt.Errorf("INGESTION_BACKOFF must be positive, got %s", i.Backoff)
	}
	return nil
}

type DirectoryOptions struct {
	URL               string        `env:"DIRECTORY_URL" envDefault:"http://localhost:8081/graphql"`
	Authorization     string        `env:"DIRECTORY_AUTHORIZATION" envDefault:""`
	Timeout           time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"10s"`
	RequestsPerSecond float64       `env:"DIRECTORY_REQUESTS_PER_SECOND" envDefault:"0"`
	Query             string        `env:"DIRECTORY_QUERY" envDefault:""`
	// OAuth2 client credentials; used instead of Authorization when TokenURL is set.
	TokenURL     string   `env:"DIRECTORY_TOKEN_URL" envDefault:""`
	ClientID     string   `env:"DIRECTORY_CLIENT_ID" envDefault:""`
	ClientSecret string   `env:"DIRECTORY_CLIENT_SECRET" envDefault:""`
	Scopes       []string `env:"DIRECTORY_SCOPES" envSeparator:","`
	// CacheTTL is only used when REDIS_URL is set.
	CacheTTL time.Duration `env:"DIRECTORY_CACHE_TTL" envDefault:"1h"`
}

func (d *DirectoryOptions) Validate() error {
	if strings.TrimSpace(d.URL) == "" {
		return fmt.Errorf("DIRECTORY_URL is required")
	}
	if strings.TrimSpace(d.TokenURL) != "" && strings.TrimSpace(d.ClientID) == "" {
		return fmt.Errorf("DIRECTORY_CLIENT_ID is required when DIRECTORY_TOKEN_URL is set")
	}
	return nil
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/internal/prometheus"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"identity-sync"`
}

type Configuration struct {
	Database   DatabaseOptions
	Kafka      KafkaOptions
	Ingestion  IngestionOptions
	Directory  DirectoryOptions
	Prometheus PrometheusOptions

	OpenTelemetry OpenTelemetryOptions

	// Redis backs the directory name cache; empty disables caching.
	RedisURL string `env:"REDIS_URL" envDefault:""`

	// ERROR_POLICY_STRICT=false lets identity events that reference ids unknown to the
	// person directory be logged and skipped instead of halting the topic.
	ErrorPolicyStrict bool `env:"ERROR_POLICY_STRICT" envDefault:"true"`

	MigrationsEnabled bool   `env:"MIGRATIONS_ENABLED" envDefault:"true"`
	ServerPort        int    `env:"PORT" envDefault:"8080"`
	GoAppEnvironment  string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress     string `env:"-"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`

	logger *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	return logging.ParseLevel(c.LogLevel)
}

func Use() *Configuration {
	return singleton()
}

// Load reads env files (if present) and the process environment into a fresh Configuration.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.Kafka.Validate(); err != nil {
		return fmt.Errorf("kafka configuration error: %w", err)
	}
	if err := c.Ingestion.Validate(); err != nil {
		return fmt.Errorf("ingestion configuration error: %w", err)
	}
	if err := c.Directory.Validate(); err != nil {
		return fmt.Errorf("directory configuration error: %w", err)
	}

	c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}
