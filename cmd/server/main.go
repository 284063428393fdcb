package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "streamos: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("streamos", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file (.toml, .yaml); defaults to $CONFIG_FILE")
	port := fs.String("port", "", "HTTP port")
	host := fs.String("host", "", "HTTP bind address")
	mode := fs.String("mode", "", "MCP tool mode: all, live, dev or discovery")
	httpEnabled := fs.Bool("http", true, "Serve the REST and WebSocket API")
	mcpEnabled := fs.Bool("mcp", false, "Serve MCP tools over stdio")
	maxPipelines := fs.Int("max-pipelines", 0, "Maximum concurrent pipelines")
	dev := fs.Bool("dev", false, "Development logging (console, debug level)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Flags override file and environment, but only when given.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "host":
			cfg.Server.Host = *host
		case "mode":
			cfg.MCP.Mode = *mode
		case "http":
			cfg.Server.Enabled = *httpEnabled
		case "mcp":
			cfg.MCP.Enabled = *mcpEnabled
		case "max-pipelines":
			cfg.Pipeline.MaxPipelines = *maxPipelines
		case "dev":
			cfg.Logging.Development = *dev
			if *dev {
				cfg.Logging.Level = "debug"
			}
		}
	})

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx)
}
