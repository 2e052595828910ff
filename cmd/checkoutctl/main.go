package main

import (
	"fmt"
	"os"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/adapters/checkoutapi"
	"github.com/LuisEduardoPedra/checkoutPix/internal/config"
	"github.com/LuisEduardoPedra/checkoutPix/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

type globalFlags struct {
	apiURL   string
	timeout  time.Duration
	logLevel string
}

func (g *globalFlags) client() (*checkoutapi.Client, *zap.Logger, error) {
	logger, err := logging.New(config.LoggingConfig{Level: g.logLevel, Format: "console"})
	if err != nil {
		return nil, nil, err
	}
	return checkoutapi.NewClient(g.apiURL, g.timeout, checkoutapi.WithLogger(logger)), logger, nil
}

func main() {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "checkoutctl",
		Short:         "checkoutctl - paga uma fatura PIX pelo terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.apiURL, "api", envOr("CHECKOUT_API_URL", "http://localhost:8090"), "URL base da API de checkout")
	rootCmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 15*time.Second, "Timeout de cada chamada")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Nível de log (debug, info, warn, error)")

	rootCmd.AddCommand(statusCmd(g))
	rootCmd.AddCommand(payCmd(g))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Erro:", err)
		os.Exit(1)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
