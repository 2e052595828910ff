package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/config"
	"github.com/LuisEduardoPedra/checkoutPix/internal/logging"
	"github.com/LuisEduardoPedra/checkoutPix/internal/sandbox"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveOptions struct {
	port           int
	seeds          string
	pixKey         string
	city           string
	statusFailures int
	logLevel       string
}

func main() {
	opts := &serveOptions{}
	rootCmd := &cobra.Command{
		Use:          "sandbox",
		Short:        "API de checkout PIX em memória para desenvolvimento",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	rootCmd.Flags().IntVarP(&opts.port, "port", "p", 8090, "Porta HTTP")
	rootCmd.Flags().StringVarP(&opts.seeds, "seeds", "s", "", "Arquivo YAML com faturas iniciais")
	rootCmd.Flags().StringVar(&opts.pixKey, "pix-key", "sandbox@checkout.dev", "Chave PIX do recebedor")
	rootCmd.Flags().StringVar(&opts.city, "city", "Sao Paulo", "Cidade do recebedor no BR Code")
	rootCmd.Flags().IntVar(&opts.statusFailures, "status-failures", 0, "Quantas consultas de status por fatura respondem 503")
	rootCmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Nível de log")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, opts *serveOptions) error {
	logger, err := logging.New(config.LoggingConfig{Level: opts.logLevel, Format: "console"})
	if err != nil {
		return err
	}
	defer logger.Sync()

	store := sandbox.NewStore(nil)
	if opts.seeds != "" {
		seeds, err := sandbox.LoadSeeds(opts.seeds)
		if err != nil {
			return err
		}
		for _, seed := range seeds {
			inv, err := store.Create(seed)
			if err != nil {
				return fmt.Errorf("criar fatura %q: %w", seed.ShareToken, err)
			}
			logger.Info("fatura criada",
				zap.String("token", inv.ShareToken),
				zap.String("valor", inv.FiatTotal.StringFixed(2)),
				zap.Time("expires_at", inv.ExpiresAt))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	server := sandbox.NewServer(sandbox.Config{
		PixKey:         opts.pixKey,
		MerchantCity:   opts.city,
		StatusFailures: opts.statusFailures,
	}, store, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("sandbox escutando", zap.Int("port", opts.port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
