// Command ksi is a CLI front end over the Context operations of spec §5:
// sign a document hash, extend a signature against a calendar, and verify a
// signature against a document, a publications file, or a publication
// string. Signal handling follows the original project's main.go
// (os/signal-driven graceful cancellation of in-flight network calls); the
// verify subcommand's -v diagnostic dump follows
// libksi-3.2.2.0/src/example/ksi_verify.c's own verbose TLV trace.
package main

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/certen/ksi-go/pkg/config"
	kcontext "github.com/certen/ksi-go/pkg/context"
	"github.com/certen/ksi-go/pkg/logging"
)

var (
	configPath string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ksi",
		Short: "Keyless Signature Infrastructure client",
		Long:  "ksi signs document hashes with a KSI aggregator, extends signatures against a calendar, and verifies signatures against publications.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a ksi.yaml config file (defaults and KSI_* env vars apply when unset)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print diagnostic TLV traces and the full error ring on failure")

	root.AddCommand(newSignCmd())
	root.AddCommand(newExtendCmd())
	root.AddCommand(newVerifyCmd())
	return root
}

// signalContext mirrors main.go's SIGINT/SIGTERM-driven shutdown, scoped
// down from the validator's long-running service loop to a single
// cancellable network round trip.
func signalContext() (stdctx.Context, stdctx.CancelFunc) {
	return signal.NotifyContext(stdctx.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadContext() (*kcontext.Context, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else if perr := level.UnmarshalText([]byte(cfg.LogLevel)); perr != nil {
		level = slog.LevelInfo
	}
	logger, err := logging.New(logging.Config{Level: level, Format: cfg.LogFormat, Output: "stderr"})
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	ctx, err := kcontext.New(cfg, kcontext.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("build context: %w", err)
	}
	return ctx, cfg, nil
}

func dumpErrorsOnFailure(ctx *kcontext.Context) {
	if !verbose {
		return
	}
	for _, e := range ctx.Errors() {
		fmt.Fprintf(os.Stderr, "  [%s] %s\n", e.Code, e.Message)
	}
}
