package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/LuisEduardoPedra/checkoutPix/internal/ports"
	"github.com/spf13/cobra"
)

func statusCmd(g *globalFlags) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Mostra a fatura e o prazo restante",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, logger, err := g.client()
			if err != nil {
				return err
			}
			defer logger.Sync()
			snap, err := client.GetInvoice(cmd.Context(), token)
			if err != nil {
				return err
			}
			printInvoice(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Token compartilhável da fatura")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func printInvoice(w io.Writer, snap ports.InvoiceSnapshot) {
	inv := snap.Invoice
	fmt.Fprintln(w, "Fatura", inv.ShareToken)
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "  Status:        %s\n", inv.Status)
	fmt.Fprintf(w, "  Beneficiário:  %s\n", inv.BeneficiaryName)
	fmt.Fprintf(w, "  Valor:         R$ %s\n", inv.FiatTotal.StringFixed(2))
	fmt.Fprintf(w, "  Cripto:        %s %s\n", inv.CryptoAmount.String(), inv.CryptoCurrency)
	fmt.Fprintf(w, "  Prazo:         %s\n", formatRemaining(snap.ExpiresInSeconds))
	if snap.Instrument != nil {
		fmt.Fprintf(w, "  PIX:           %s\n", snap.Instrument.QRPayload)
	}
}

func formatRemaining(secs int) string {
	if secs <= 0 {
		return "expirado"
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
