// Package config parses the process configuration from flags, environment
// variables (DBMCP_ prefix) and an optional plain config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

const (
	DriverPostgres  = "postgres"
	DriverMySQL     = "mysql"
	DriverSQLite    = "sqlite"
	DriverSQLServer = "sqlserver"
	DriverOracle    = "oracle"
)

var Drivers = []string{DriverPostgres, DriverMySQL, DriverSQLite, DriverSQLServer, DriverOracle}

const (
	TransportStdio   = "stdio"
	TransportHTTP    = "http"
	TransportConsole = "console"
)

// Profile is the connection and pool settings of one named connection.
type Profile struct {
	Driver   string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	MinConns       int
	MaxConns       int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
}

func (p Profile) Validate() error {
	var errs []error
	if !slices.Contains(Drivers, p.Driver) {
		errs = append(errs, fmt.Errorf("unsupported driver %q (want one of %s)", p.Driver, strings.Join(Drivers, ", ")))
	}
	if p.Database == "" {
		errs = append(errs, errors.New("database name is required"))
	}
	if p.Driver != DriverSQLite {
		if p.Host == "" {
			errs = append(errs, errors.New("database host is required"))
		}
		if p.User == "" {
			errs = append(errs, errors.New("database user is required"))
		}
	}
	if p.Port < 0 || p.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", p.Port))
	}
	if p.MinConns < 0 {
		errs = append(errs, errors.New("pool min size must not be negative"))
	}
	if p.MaxConns < 1 {
		errs = append(errs, errors.New("pool max size must be at least 1"))
	}
	if p.MinConns > p.MaxConns {
		errs = append(errs, fmt.Errorf("pool min size %d exceeds max size %d", p.MinConns, p.MaxConns))
	}
	if p.AcquireTimeout <= 0 {
		errs = append(errs, errors.New("acquire timeout must be positive"))
	}
	return errors.Join(errs...)
}

// String renders the profile without its password.
func (p Profile) String() string {
	u := url.URL{
		Scheme: p.Driver,
		Host:   p.Host,
		Path:   "/" + p.Database,
	}
	if p.Port > 0 {
		u.Host = p.Host + ":" + strconv.Itoa(p.Port)
	}
	if p.User != "" {
		u.User = url.User(p.User)
	}
	return u.String()
}

type Config struct {
	Profile Profile

	Transport      string
	Port           uint
	GRPCPort       int
	HealthTimeout  time.Duration
	HealthInterval time.Duration

	BackupDir    string
	NATSURL      string
	KafkaBrokers []string
	S3Region     string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string

	LogLevel    slog.Level
	ShowVersion bool
}

type UsageError struct {
	Help string
	Err  error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func Parse(args []string) (Config, error) {
	fs := ff.NewFlagSet("dbmcp")
	driver := fs.StringLong("db-driver", DriverPostgres, "Database driver ("+strings.Join(Drivers, "|")+")")
	host := fs.StringLong("db-host", "", "Database host")
	dbPort := fs.IntLong("db-port", 0, "Database port (0 uses the driver default)")
	dbName := fs.StringLong("db-name", "", "Database name (file path for sqlite)")
	user := fs.StringLong("db-user", "", "Database user")
	pass := fs.StringLong("db-pass", "", "Database password")
	sslMode := fs.StringLong("db-sslmode", "", "TLS mode passed to the driver (postgres sslmode, mysql tls, sqlserver encrypt)")

	poolMin := fs.IntLong("pool-min", 1, "Minimum number of pooled connections")
	poolMax := fs.IntLong("pool-max", 10, "Maximum number of pooled connections")
	acquireTimeout := fs.DurationLong("acquire-timeout", 5*time.Second, "Maximum wait for a pooled connection")
	idleTimeout := fs.DurationLong("idle-timeout", 5*time.Minute, "Close idle connections above the minimum after this period (0 to disable)")
	healthTimeout := fs.DurationLong("health-timeout", 2*time.Second, "Connection acquire timeout used by health checks")
	healthInterval := fs.DurationLong("health-interval", 10*time.Second, "Refresh interval of the gRPC health status")

	transport := fs.StringLong("transport", TransportHTTP, "Tool transport (stdio|http|console)")
	port := fs.Uint('p', "port", 8080, "HTTP server port")
	grpcPort := fs.IntLong("grpc-port", 0, "gRPC health server port (0 to disable)")

	backupDir := fs.StringLong("backup-dir", "backups", "Directory for file: backup destinations")
	natsURL := fs.StringLong("nats-url", "", "NATS server URL for nats:// backup destinations (\"embedded\" runs an in-process JetStream server)")
	kafkaBrokers := fs.StringLong("kafka-brokers", "", "Comma-separated Kafka seed brokers for kafka:// backup destinations")
	s3Region := fs.StringLong("s3-region", "", "AWS region for s3:// backup destinations")
	s3Endpoint := fs.StringLong("s3-endpoint", "", "Custom S3 endpoint (path-style addressing)")
	s3AccessKey := fs.StringLong("s3-access-key", "", "Static S3 access key (default credential chain when empty)")
	s3SecretKey := fs.StringLong("s3-secret-key", "", "Static S3 secret key")

	logLevel := fs.StringLong("log-level", "info", "Log level (debug|info|warn|error)")
	printVersion := fs.BoolLong("version", "Print version information and exit")
	_ = fs.String('c', "config", "", "config file (optional)")

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("DBMCP"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		return Config{}, &UsageError{Help: fmt.Sprintf("%s", ffhelp.Flags(fs)), Err: err}
	}

	cfg := Config{
		Profile: Profile{
			Driver:         strings.ToLower(*driver),
			Host:           *host,
			Port:           *dbPort,
			Database:       *dbName,
			User:           *user,
			Password:       *pass,
			SSLMode:        *sslMode,
			MinConns:       *poolMin,
			MaxConns:       *poolMax,
			AcquireTimeout: *acquireTimeout,
			IdleTimeout:    *idleTimeout,
		},
		Transport:      strings.ToLower(*transport),
		Port:           *port,
		GRPCPort:       *grpcPort,
		HealthTimeout:  *healthTimeout,
		HealthInterval: *healthInterval,
		BackupDir:      *backupDir,
		NATSURL:        *natsURL,
		S3Region:       *s3Region,
		S3Endpoint:     *s3Endpoint,
		S3AccessKey:    *s3AccessKey,
		S3SecretKey:    *s3SecretKey,
		ShowVersion:    *printVersion,
	}
	if *kafkaBrokers != "" {
		for _, b := range strings.Split(*kafkaBrokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(*logLevel)); err != nil {
		return Config{}, &UsageError{Help: fmt.Sprintf("%s", ffhelp.Flags(fs)), Err: fmt.Errorf("--log-level: %w", err)}
	}
	if cfg.ShowVersion {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if err := c.Profile.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Transport {
	case TransportStdio, TransportHTTP, TransportConsole:
	default:
		errs = append(errs, fmt.Errorf("unsupported transport %q", c.Transport))
	}
	if c.HealthTimeout <= 0 {
		errs = append(errs, errors.New("health timeout must be positive"))
	}
	return errors.Join(errs...)
}
