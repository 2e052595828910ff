package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/core/checkout"
	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// conversionGrace é quanto o comando espera pela oferta de conta depois do pagamento.
const conversionGrace = 10 * time.Second

type payOptions struct {
	token        string
	payerPath    string
	password     string
	pollInterval time.Duration
}

func payCmd(g *globalFlags) *cobra.Command {
	opts := &payOptions{}
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Envia os dados do pagador, exibe o PIX copia e cola e acompanha o pagamento",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPay(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.token, "token", "", "Token compartilhável da fatura")
	cmd.Flags().StringVar(&opts.payerPath, "payer", "", "Arquivo YAML com os dados do pagador")
	cmd.Flags().StringVar(&opts.password, "create-account", "", "Cria a conta com esta senha se a oferta aparecer")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 5*time.Second, "Intervalo entre consultas de pagamento")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("payer")
	return cmd
}

func runPay(cmd *cobra.Command, g *globalFlags, opts *payOptions) error {
	identity, address, terms, err := loadPayer(opts.payerPath)
	if err != nil {
		return err
	}
	client, logger, err := g.client()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	updates := make(chan domain.SessionSnapshot, 1)
	ctrl := checkout.NewController(uuid.NewString(), checkout.Config{
		PollInterval:   opts.pollInterval,
		RequestTimeout: g.timeout,
	}, checkout.Dependencies{
		Invoices:    client,
		Instruments: client,
		Eligibility: client,
		Accounts:    client,
		Logger:      logger,
	}, func(s domain.SessionSnapshot) { latest(updates, s) })
	defer ctrl.Close()

	out := cmd.OutOrStdout()
	if err := ctrl.LoadSession(ctx, opts.token); err != nil {
		return err
	}
	switch ctrl.State() {
	case domain.StateCollectingIdentity:
		if err := ctrl.SubmitPayerData(ctx, identity, address, terms); err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				for field, msg := range verr.Fields {
					fmt.Fprintf(out, "  %s: %s\n", field, msg)
				}
			}
			return err
		}
	case domain.StateAwaitingPayment:
		fmt.Fprintln(out, "Cobrança já emitida para esta fatura.")
	}

	snap := ctrl.Snapshot()
	if snap.Instrument != nil {
		printInstrument(out, snap)
	}
	final, err := waitOutcome(ctx, out, updates, snap)
	if err != nil {
		return err
	}
	return finish(ctx, out, ctrl, final, opts.password)
}

// latest substitui o snapshot pendente pelo mais novo sem bloquear o controlador.
func latest(ch chan domain.SessionSnapshot, s domain.SessionSnapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case old := <-ch:
			if old.Version > s.Version {
				s = old
			}
		default:
		}
	}
}

// waitOutcome acompanha a sessão até um estado terminal ou até o fim da
// janela de conversão depois do pagamento.
func waitOutcome(ctx context.Context, out io.Writer, updates <-chan domain.SessionSnapshot, cur domain.SessionSnapshot) (domain.SessionSnapshot, error) {
	var grace <-chan time.Time
	lastRemaining := cur.RemainingSeconds
	for {
		switch {
		case cur.State.Terminal(), cur.State == domain.StateOfferingConversion:
			return cur, nil
		case cur.State == domain.StatePaid && grace == nil:
			grace = time.After(conversionGrace)
		}
		select {
		case <-ctx.Done():
			return cur, ctx.Err()
		case <-grace:
			return cur, nil
		case s := <-updates:
			if s.Version <= cur.Version {
				continue
			}
			cur = s
			if cur.State == domain.StateAwaitingPayment && cur.RemainingSeconds/60 != lastRemaining/60 {
				fmt.Fprintf(out, "Aguardando pagamento... %s restantes\n", formatRemaining(cur.RemainingSeconds))
			}
			lastRemaining = cur.RemainingSeconds
		}
	}
}

func finish(ctx context.Context, out io.Writer, ctrl *checkout.Controller, snap domain.SessionSnapshot, password string) error {
	switch snap.State {
	case domain.StateExpired:
		return domain.ErrExpired
	case domain.StateError:
		if snap.LastError != "" {
			return errors.New(snap.LastError)
		}
		return domain.ErrInvoiceClosed
	case domain.StatePaid, domain.StateCompleted:
		fmt.Fprintln(out, "✅ Pagamento confirmado.")
		return nil
	}

	fmt.Fprintln(out, "✅ Pagamento confirmado.")
	if snap.Offer != nil {
		fmt.Fprintln(out, snap.Offer.Headline)
		for _, b := range snap.Offer.Benefits {
			fmt.Fprintln(out, "  •", b)
		}
	}
	if password == "" {
		fmt.Fprintln(out, "Use --create-account para abrir sua conta.")
		return nil
	}
	account, err := ctrl.StartAccountUpgrade(ctx, password, password, true, true)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Conta criada para", account.Email)
	return nil
}

func printInstrument(w io.Writer, snap domain.SessionSnapshot) {
	fmt.Fprintf(w, "Valor: R$ %s para %s\n", snap.Invoice.FiatTotal.StringFixed(2), snap.Invoice.BeneficiaryName)
	fmt.Fprintln(w, "PIX copia e cola:")
	fmt.Fprintln(w, snap.Instrument.QRPayload)
	for i, step := range snap.Instrument.Instructions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
	fmt.Fprintf(w, "Prazo: %s\n", formatRemaining(snap.RemainingSeconds))
}
