// Package main provides the invrender CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/born-ml/invrender/internal/config"
	"github.com/born-ml/invrender/internal/logging"
	"github.com/born-ml/invrender/internal/pipeline"
)

const version = "v0.1.0-dev"

func usage() {
	fmt.Println("invrender - differentiable inverse rendering")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version              Show version")
	fmt.Println("  run [config.json]    Reconstruct a scene (built-in defaults without a config)")
	fmt.Println("                       config \"mode\": reconstruction, sphere or function")
	fmt.Println("")
	fmt.Println("Set DEBUG=1 for verbose logging.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "version":
		fmt.Printf("invrender %s\n", version)
	case "run":
		if err := run(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func run(args []string) error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Default()
	if len(args) > 0 {
		var err error
		if cfg, err = config.Load(args[0]); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}
	final := report.Final()
	fmt.Printf("Final energy: %g\n", final.Energy)
	fmt.Printf("Total iterations: %d\n", final.Iterations)
	fmt.Printf("Gradient norm: %g\n", final.GradNorm)
	fmt.Printf("State: %s\n", final.State)
	return nil
}
