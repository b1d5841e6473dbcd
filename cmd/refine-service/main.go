// Package main provides the entry point for refine-service.
//
// refine-service is a standalone service providing:
// - REST API for driving prompt refinement sessions
// - MCP server exposing session history and search to agent clients
// - Background archive indexing of the session store
//
// Usage:
//
//	refine-service                  Start the service (default)
//	refine-service serve            Start the service
//	refine-service version          Show version
//	refine-service status           Show service status
//	refine-service stop             Stop the running service
//	refine-service mcp              Start MCP server (stdio mode)
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/refine/internal/api"
	"github.com/ternarybob/refine/internal/bootstrap"
	"github.com/ternarybob/refine/internal/config"
	"github.com/ternarybob/refine/internal/logger"
	"github.com/ternarybob/refine/internal/mcp"
	"github.com/ternarybob/refine/internal/service"
)

// version is set via -ldflags at build time
var version = "dev"

func main() {
	api.SetVersion(version)

	if len(os.Args) < 2 {
		// Default: start service
		if err := cmdServe(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var err error
	switch os.Args[1] {
	case "serve", "start":
		err = cmdServe()
	case "version", "-v", "--version":
		cmdVersion()
	case "status":
		err = cmdStatus()
	case "stop":
		err = cmdStop()
	case "mcp", "mcp-server":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`refine-service - Prompt refinement session service

Usage:
  refine-service [command]

Commands:
  serve         Start the service (default)
  version       Show version information
  status        Show service status
  stop          Stop the running service
  mcp           Start MCP server (stdio mode for agent integration)
  help          Show this help

Environment:
  REFINE_API_KEY    API key for the configured LLM provider
  GEMINI_API_KEY    API key for semantic archive search (optional)

Configuration:
  Config file: ~/.refine-service/config.toml (or $APPDATA/refine-service on Windows)

Examples:
  refine-service                  Start the service
  refine-service mcp              Start MCP server
  curl localhost:8436/health      Check service health
  curl localhost:8436/sessions    List refinement sessions`)
}

func cmdVersion() {
	fmt.Printf("refine-service version %s\n", version)
}

func cmdServe() error {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if running, pid := service.IsRunning(cfg); running {
		return fmt.Errorf("service already running (PID %d)", pid)
	}

	log := logger.SetupLogger(cfg)
	defer logger.Stop()

	rt, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer rt.Close()

	if rt.Watcher != nil {
		if err := rt.Watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Archive watcher failed to start")
		}
	}

	apiServer := api.NewServer(cfg, rt.Store, rt.Archive, rt.EngineFactory())

	daemon := service.NewDaemon(cfg)
	if err := daemon.Start(apiServer.Handler()); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Printf("refine-service v%s started on %s\n", version, cfg.Address())
	fmt.Printf("API: http://%s/sessions\n", cfg.Address())
	log.Info().Str("address", cfg.Address()).Str("version", version).Msg("Service started")

	daemon.Wait()

	return nil
}

func cmdStatus() error {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	running, pid := service.IsRunning(cfg)
	if running {
		fmt.Printf("refine-service: running (PID %d)\n", pid)
		fmt.Printf("Address: %s\n", cfg.Address())
	} else {
		fmt.Println("refine-service: stopped")
	}

	return nil
}

func cmdStop() error {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	running, pid := service.IsRunning(cfg)
	if !running {
		fmt.Println("refine-service is not running")
		return nil
	}

	fmt.Printf("Stopping refine-service (PID %d)...\n", pid)
	if err := service.StopRunning(cfg); err != nil {
		return err
	}

	fmt.Println("refine-service stopped")
	return nil
}

func cmdMCP() error {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		cfg = config.DefaultConfig()
	}

	rt, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer rt.Close()

	mcpServer := mcp.NewServer(rt.Store, rt.Archive, version)
	return mcpServer.ServeStdio()
}
