package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skobkin/bblink/internal/adapter"
	"github.com/skobkin/bblink/internal/app"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run bblink", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path (default: user config dir)")
	console := flag.Bool("console", true, "read debug console commands (r, R, +, -) from stdin")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(app.Name, app.BuildVersionWithDate())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Initialize(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()

	if *console {
		go readConsole(ctx, os.Stdin, rt.Adapter.Console, rt.LogManager.Logger("console"))
	}

	return rt.Run(ctx)
}

// readConsole feeds single-byte commands to the adapter. Whitespace is
// skipped so commands can be typed one per line.
func readConsole(ctx context.Context, r io.Reader, submit func(byte) error, logger *slog.Logger) {
	reader := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return
		}
		b, err := reader.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("console read failed", "error", err)
			}
			return
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}

		switch err := submit(b); {
		case err == nil:
			logger.Info("console command queued", "command", string(b))
		case errors.Is(err, adapter.ErrUnknownCommand):
			logger.Warn("unknown console command", "command", string(b))
		default:
			logger.Warn("console command rejected", "command", string(b), "error", err)
		}
	}
}
