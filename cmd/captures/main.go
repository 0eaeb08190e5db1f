package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/smart-captures/internal/common"
	"github.com/Veraticus/smart-captures/internal/config"
)

var (
	cfgFile   string
	version   = "dev"
	appConfig config.Config
	logCloser io.Closer
	rootCmd   = &cobra.Command{
		Use:   "captures",
		Short: "📥 Turn bank SMS notifications into reviewed expenses",
		Long: `smart-captures collects bank and payment SMS notifications, keeps the ones
that look like spending, and queues them for you to add to your ledger or ignore.

Messages can arrive while nothing is listening: they wait in the relay until the
next sync or watch picks them up.`,
		PersistentPreRunE:  initConfig,
		PersistentPostRunE: closeLogs,
		SilenceUsage:       true,
		SilenceErrors:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/captures/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("storage", "", "store backend (sqlite, redis, memory)")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("storage.backend", rootCmd.PersistentFlags().Lookup("storage"))

	rootCmd.AddCommand(receiveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(acceptCmd())
	rootCmd.AddCommand(ignoreCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(dedupCmd())
	rootCmd.AddCommand(liveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		var userErr *common.UserError
		if errors.As(err, &userErr) {
			fmt.Fprintln(os.Stderr, userErr.UserMessage)
			slog.Debug("Command failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	// .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if dir := config.Dir(); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	config.BindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	closer, err := common.SetupLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	appConfig = cfg
	logCloser = closer
	slog.Debug("Configuration loaded", "config_file", v.ConfigFileUsed(), "storage", cfg.Storage.Backend)
	return nil
}

func closeLogs(_ *cobra.Command, _ []string) error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "captures %s\n", version)
		},
	}
}
