// Package main provides the controlqa CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/richinex/controlqa/cli"
	"github.com/richinex/controlqa/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	provider   string
	verbose    bool
	logFormat  string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "controlqa",
		Short: "Control-theory question answering over a textbook knowledge base",
		Long: `Answers control-theory questions with a bounded tool-use loop.

The model searches three knowledge partitions (linear, discrete and
nonlinear control), may translate passages into Russian, and answers
with citations to the retrieved textbook pages.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (ollama, openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(chunksCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadSettings() (config.Settings, error) {
	return config.Load(configPath, provider)
}

func options() cli.Options {
	opts := cli.DefaultOptions()
	opts.Verbose = verbose
	opts.LogFormat = logFormat
	return opts
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve POST /v1/ask, GET /health and GET /metrics.

The server shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if addr != "" {
				settings.Server.Addr = addr
			}

			rt, err := cli.NewRuntime(settings, options())
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return rt.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides SERVER_ADDR)")
	return cmd
}

func askCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			opts := options()
			opts.JSON = asJSON
			rt, err := cli.NewRuntime(settings, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return rt.Ask(ctx, strings.Join(args, " "))
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func toolsCmd() *cobra.Command {
	var toolsVerbose bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			cli.ListTools(os.Stdout, settings, toolsVerbose)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&toolsVerbose, "parameters", "V", false, "Show tool parameters")
	return cmd
}

func chunksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "Manage the chunk text store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [files...]",
		Short: "Register already-chunked text files",
		Long: `Register chunk files in the SQLite chunk store.

Each file gets a content-derived id. The partition and book are taken
from the file name: NL is nonlinear (nl_khalil), DC is discrete
(ds_ogata), anything else is linear (cls_ogata).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			return cli.AddChunks(cmd.Context(), os.Stdout, settings, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm [chunk-ids...]",
		Short: "Remove chunk records by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			return cli.RemoveChunks(cmd.Context(), os.Stdout, settings, args)
		},
	})

	return cmd
}
