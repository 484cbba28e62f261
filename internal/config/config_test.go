package config_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litesql/dbmcp/internal/config"
)

func TestParseFlags(t *testing.T) {
	cfg, err := config.Parse([]string{
		"--db-driver", "postgres",
		"--db-host", "db.internal",
		"--db-port", "6543",
		"--db-name", "app",
		"--db-user", "svc",
		"--db-pass", "secret",
		"--pool-min", "2",
		"--pool-max", "4",
		"--acquire-timeout", "250ms",
		"--kafka-brokers", "k1:9092, k2:9092",
		"--log-level", "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, config.Profile{
		Driver:         "postgres",
		Host:           "db.internal",
		Port:           6543,
		Database:       "app",
		User:           "svc",
		Password:       "secret",
		MinConns:       2,
		MaxConns:       4,
		AcquireTimeout: 250 * time.Millisecond,
		IdleTimeout:    5 * time.Minute,
	}, cfg.Profile)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, config.TransportHTTP, cfg.Transport)
}

func TestParseEnv(t *testing.T) {
	t.Setenv("DBMCP_DB_DRIVER", "sqlite")
	t.Setenv("DBMCP_DB_NAME", "/tmp/app.db")
	t.Setenv("DBMCP_POOL_MAX", "3")
	t.Setenv("DBMCP_TRANSPORT", "stdio")

	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Profile.Driver)
	assert.Equal(t, "/tmp/app.db", cfg.Profile.Database)
	assert.Equal(t, 3, cfg.Profile.MaxConns)
	assert.Equal(t, config.TransportStdio, cfg.Transport)
}

func TestParseMissingConnectionSettings(t *testing.T) {
	_, err := config.Parse([]string{"--db-driver", "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database name is required")
	assert.Contains(t, err.Error(), "database host is required")
	assert.Contains(t, err.Error(), "database user is required")
}

func TestParseUnknownFlag(t *testing.T) {
	_, err := config.Parse([]string{"--no-such-flag"})
	var usage *config.UsageError
	require.True(t, errors.As(err, &usage))
	assert.NotEmpty(t, usage.Help)
}

func TestProfileValidate(t *testing.T) {
	base := config.Profile{
		Driver:         "mysql",
		Host:           "localhost",
		Database:       "app",
		User:           "root",
		MinConns:       1,
		MaxConns:       2,
		AcquireTimeout: time.Second,
	}
	require.NoError(t, base.Validate())

	tt := map[string]func(p *config.Profile){
		"unknown driver": func(p *config.Profile) { p.Driver = "db2" },
		"min above max":  func(p *config.Profile) { p.MinConns = 3 },
		"zero max":       func(p *config.Profile) { p.MaxConns = 0; p.MinConns = 0 },
		"no timeout":     func(p *config.Profile) { p.AcquireTimeout = 0 },
		"bad port":       func(p *config.Profile) { p.Port = 70000 },
	}
	for name, mutate := range tt {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestProfileStringHidesPassword(t *testing.T) {
	p := config.Profile{Driver: "postgres", Host: "h", Port: 5432, Database: "d", User: "u", Password: "pw"}
	assert.Equal(t, "postgres://u@h:5432/d", p.String())
	assert.NotContains(t, p.String(), "pw")
}
