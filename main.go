package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/litesql/dbmcp/internal/backup"
	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/console"
	"github.com/litesql/dbmcp/internal/health"
	dbhttp "github.com/litesql/dbmcp/internal/http"
	"github.com/litesql/dbmcp/internal/mcp"
	"github.com/litesql/dbmcp/internal/metrics"
	"github.com/litesql/dbmcp/internal/pool"
	"github.com/litesql/dbmcp/internal/tools"
)

var (
	version string = "dev"
	commit  string = "none"
	date    string = "unknown"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		var usage *config.UsageError
		if errors.As(err, &usage) {
			fmt.Fprintf(os.Stderr, "%s\n", usage.Help)
		}
		fmt.Fprintf(os.Stderr, "err=%v\n", err)
		os.Exit(2)
	}

	if cfg.ShowVersion {
		fmt.Println("dbmcp")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Date: %s\n", date)
		return
	}

	// stdout belongs to the stdio transport
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if err := run(cfg); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pools := pool.NewSet(cfg.Profile)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := pools.Close(shutdownCtx); err != nil {
			slog.Error("failed to close connection pools", "error", err)
		}
	}()
	slog.Info("opening default connection", "target", cfg.Profile.String())
	if _, err := pools.Open(ctx, pool.DefaultName, cfg.Profile); err != nil {
		return fmt.Errorf("failed to open default connection: %w", err)
	}

	sinks, natsServer, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			slog.Error("failed to close backup sinks", "error", err)
		}
		if natsServer != nil {
			natsServer.Shutdown()
			natsServer.WaitForShutdown()
		}
	}()
	slog.Info("backup destinations", "schemes", sinks.Schemes())

	reporter := health.NewReporter(pools, cfg.HealthTimeout)
	m := metrics.New(pools)
	dispatcher := tools.NewDispatcher(tools.NewRegistry(tools.NewEnv(pools, reporter, sinks)), m)
	mcpServer := mcp.NewServer(dispatcher, version)

	if cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
		slog.Info("starting gRPC health server", "port", cfg.GRPCPort)
		go func() {
			if err := health.ServeGRPC(ctx, lis, reporter, cfg.HealthInterval); err != nil {
				slog.Error("gRPC health server error", "error", err)
			}
		}()
	}

	switch cfg.Transport {
	case config.TransportStdio:
		slog.Info("serving MCP on stdio", "version", version)
		return mcp.RunStdio(ctx, mcpServer)
	case config.TransportConsole:
		return console.New(dispatcher, os.Stdout).Run(ctx)
	}

	server := http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: dbhttp.NewMux(dbhttp.Config{
			Dispatcher: dispatcher,
			Health:     reporter,
			Metrics:    m.Handler(),
			MCP:        mcp.NewHTTPHandler(mcpServer),
		}),
	}
	go func() {
		<-ctx.Done()
		slog.Warn("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown failed", "error", err)
		}
	}()

	slog.Info("starting dbmcp HTTP server", "port", cfg.Port, "version", version, "commit", commit, "date", date)
	return server.ListenAndServe()
}

// openSinks configures a backup sink for every destination the settings
// enable. File destinations are always available.
func openSinks(ctx context.Context, cfg config.Config) (backup.Sinks, *server.Server, error) {
	sinks := backup.Sinks{
		backup.SchemeFile: &backup.FileSink{Dir: cfg.BackupDir},
	}
	var ns *server.Server
	fail := func(err error) (backup.Sinks, *server.Server, error) {
		sinks.Close()
		if ns != nil {
			ns.Shutdown()
		}
		return nil, nil, err
	}

	switch cfg.NATSURL {
	case "":
	case backup.EmbeddedURL:
		sink, s, err := backup.RunEmbeddedNATS(filepath.Join(cfg.BackupDir, ".jetstream"))
		if err != nil {
			return fail(fmt.Errorf("failed to start embedded NATS server: %w", err))
		}
		sinks[backup.SchemeNATS], ns = sink, s
	default:
		sink, err := backup.DialNATS(cfg.NATSURL)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to NATS: %w", err))
		}
		sinks[backup.SchemeNATS] = sink
	}

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := backup.NewKafkaSink(cfg.KafkaBrokers)
		if err != nil {
			return fail(fmt.Errorf("failed to create Kafka client: %w", err))
		}
		sinks[backup.SchemeKafka] = sink
	}

	if cfg.S3Region != "" || cfg.S3Endpoint != "" {
		sink, err := backup.NewS3Sink(ctx, backup.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to load S3 configuration: %w", err))
		}
		sinks[backup.SchemeS3] = sink
	}
	return sinks, ns, nil
}
