package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/viper"
)

// Config is the root configuration for vectorinit.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	BootstrapOnStart bool          `mapstructure:"bootstrap_on_start"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

type BootstrapConfig struct {
	Timeout      time.Duration  `mapstructure:"timeout"`
	RetryBackoff time.Duration  `mapstructure:"retry_backoff"`
	MaxAttempts  int            `mapstructure:"max_attempts"`
	Postgres     PostgresConfig `mapstructure:"postgres"`
	Grant        GrantConfig    `mapstructure:"grant"`
	Schema       SchemaConfig   `mapstructure:"schema"`
	NATS         NATSConfig     `mapstructure:"nats"`
	Redis        RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	// URL, when set, takes precedence over the individual fields.
	URL            string        `mapstructure:"url"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DB             string        `mapstructure:"db"`
	SSLMode        string        `mapstructure:"ssl_mode"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// GrantConfig names the database and role of the GRANT statement. Empty
// values fall back to the connection's database and user.
type GrantConfig struct {
	Database string `mapstructure:"database"`
	Role     string `mapstructure:"role"`
}

type SchemaConfig struct {
	Tables              bool `mapstructure:"tables"`
	EmbeddingDimensions int  `mapstructure:"embedding_dimensions"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the VECTORINIT_ prefix
// (e.g. VECTORINIT_BOOTSTRAP_POSTGRES_HOST). DATABASE_URL is accepted as an
// alias for bootstrap.postgres.url.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("VECTORINIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("bootstrap.postgres.url", "VECTORINIT_BOOTSTRAP_POSTGRES_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("binding DATABASE_URL: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.bootstrap_on_start", true)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "vectorinit")
	v.SetDefault("telemetry.log_level", "info")

	v.SetDefault("bootstrap.timeout", 2*time.Minute)
	v.SetDefault("bootstrap.retry_backoff", 2*time.Second)
	v.SetDefault("bootstrap.max_attempts", 3)

	v.SetDefault("bootstrap.postgres.url", "")
	v.SetDefault("bootstrap.postgres.host", "localhost")
	v.SetDefault("bootstrap.postgres.port", 5433)
	v.SetDefault("bootstrap.postgres.user", "puniyani")
	v.SetDefault("bootstrap.postgres.password", "")
	v.SetDefault("bootstrap.postgres.db", "rag_system")
	v.SetDefault("bootstrap.postgres.ssl_mode", "disable")
	v.SetDefault("bootstrap.postgres.connect_timeout", 10*time.Second)

	v.SetDefault("bootstrap.grant.database", "")
	v.SetDefault("bootstrap.grant.role", "")

	v.SetDefault("bootstrap.schema.tables", false)
	v.SetDefault("bootstrap.schema.embedding_dimensions", 384)

	v.SetDefault("bootstrap.nats.url", "")
	v.SetDefault("bootstrap.nats.subject", "bootstrap.events")

	v.SetDefault("bootstrap.redis.addr", "")
	v.SetDefault("bootstrap.redis.password", "")
	v.SetDefault("bootstrap.redis.db", 0)
	v.SetDefault("bootstrap.redis.key", "vectorinit:last_result")
	v.SetDefault("bootstrap.redis.ttl", 24*time.Hour)
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Bootstrap.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("bootstrap.max_attempts must be at least 1, got %d", c.Bootstrap.MaxAttempts))
	}
	if c.Bootstrap.Postgres.URL != "" {
		if _, err := pgx.ParseConfig(c.Bootstrap.Postgres.URL); err != nil {
			errs = append(errs, fmt.Errorf("bootstrap.postgres.url: %w", err))
		}
	}
	database, role := c.GrantTarget()
	if database == "" {
		errs = append(errs, errors.New("grant database is empty (set bootstrap.grant.database or bootstrap.postgres.db)"))
	}
	if role == "" {
		errs = append(errs, errors.New("grant role is empty (set bootstrap.grant.role or bootstrap.postgres.user)"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GrantTarget returns the database and role for the GRANT statement,
// falling back to the database and user of the connection. The URL field is
// parsed by pgx, so both URL and keyword/value forms work. With no database
// named there, the server uses the user name.
func (c *Config) GrantTarget() (database, role string) {
	database, role = c.Bootstrap.Grant.Database, c.Bootstrap.Grant.Role
	pg := c.Bootstrap.Postgres

	connDB, connUser := pg.DB, pg.User
	if pg.URL != "" {
		connDB, connUser = "", ""
		if cc, err := pgx.ParseConfig(pg.DSN()); err == nil {
			connDB, connUser = cc.Database, cc.User
		}
		if connDB == "" {
			connDB = connUser
		}
	}

	if database == "" {
		database = connDB
	}
	if role == "" {
		role = connUser
	}
	return database, role
}

// DSN returns the connection string for the bootstrap session.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.DB,
	}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	} else {
		u.User = url.User(p.User)
	}

	q := url.Values{}
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	if p.ConnectTimeout > 0 {
		// Whole seconds only, and 0 means no timeout, so round up.
		q.Set("connect_timeout", strconv.Itoa(int(math.Ceil(p.ConnectTimeout.Seconds()))))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
