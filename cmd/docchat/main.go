// docchat is a multi-tenant document question answering server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spetr/docchat/internal/config"
	"github.com/spetr/docchat/internal/rag"
	"github.com/spetr/docchat/internal/server"
	"github.com/spetr/docchat/pkg/types"
)

var (
	version   = "0.1.0"
	cfgFile   string
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Document question answering with per-user and shared collections",
	Long: `docchat answers questions over uploaded documents using retrieval
augmented generation.

Documents live in per-user and shared collections; answered questions
are recorded as searchable chat history. Generation uses OpenAI when an
API key is configured and fails over to a local Ollama instance.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("docchat %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		watch, _ := cmd.Flags().GetBool("watch")
		debounce, _ := cmd.Flags().GetInt("debounce")
		if err := runServe(watch, time.Duration(debounce)*time.Millisecond); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Ingest a document from the command line",
	Long: `Ingest a document into the shared collection, or into a user's
private collection with --user.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		user, _ := cmd.Flags().GetString("user")
		if err := runIngest(args[0], user); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigInit()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigValidate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "docchat.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	serveCmd.Flags().Bool("watch", false, "watch the document tree and rebuild collections on changes")
	serveCmd.Flags().Int("debounce", 500, "watch debounce time in milliseconds")

	ingestCmd.Flags().String("user", "", "ingest into this user's private collection")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(configCmd)
}

func runServe(watch bool, debounce time.Duration) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("invalid configuration", "error", e)
		}
		return fmt.Errorf("configuration invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := rag.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if watch {
		watcher, err := rag.NewWatcher(engine, debounce)
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				slog.Error("document watcher stopped", "error", err)
			}
		}()
	}

	return server.New(engine, cfg.Server).Start(ctx)
}

func runIngest(path, user string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	engine, err := rag.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	scope := types.SharedScope()
	if user != "" {
		scope = types.UserScope(user)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return engine.Upload(ctx, scope, path, f)
}

func runConfigInit() {
	if _, err := os.Stat(cfgFile); err == nil {
		fmt.Printf("Configuration file already exists: %s\n", cfgFile)
		return
	}

	if err := config.Save(cfgFile, config.DefaultConfig()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Printf("Created configuration file: %s\n", cfgFile)
}

func runConfigValidate() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		fmt.Println("Configuration is invalid:")
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}
	fmt.Println("Configuration is valid")
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
