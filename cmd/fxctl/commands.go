package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fxsettle/internal/payment/handler"
	"fxsettle/pkg/platform/middleware/caller"
)

type rootOptions struct {
	server     string
	as         string
	adminToken string
	timeout    time.Duration
	json       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "fxctl",
		Short:         "fxctl - client for the fxsettle settlement engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("FXSETTLE_SERVER", "http://localhost:8080"), "Server base URL")
	flags.StringVar(&opts.as, "as", os.Getenv("FXSETTLE_CALLER"), "Caller account id sent as "+caller.HeaderCallerID)
	flags.StringVar(&opts.adminToken, "admin-token", os.Getenv("FXSETTLE_ADMIN_TOKEN"), "Operator token for admin routes")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	flags.BoolVarP(&opts.json, "json", "j", false, "Output raw JSON")

	rootCmd.AddCommand(initiateCmd(opts))
	rootCmd.AddCommand(submitRateCmd(opts))
	rootCmd.AddCommand(getCmd(opts))
	rootCmd.AddCommand(eventsCmd(opts))
	rootCmd.AddCommand(oraclesCmd(opts))
	rootCmd.AddCommand(balanceCmd(opts))
	rootCmd.AddCommand(fundCmd(opts))
	return rootCmd
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.server, o.as, o.adminToken, o.timeout)
}

func initiateCmd(opts *rootOptions) *cobra.Command {
	var payee, amount, instrument string
	cmd := &cobra.Command{
		Use:   "initiate [payment-id]",
		Short: "Initiate a payment as --as, escrowing the amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.PaymentResponse
			err := opts.client().do(cmd.Context(), http.MethodPost, "/v1/payments", map[string]string{
				"payment_id": args[0],
				"payee":      payee,
				"instrument": instrument,
				"amount":     amount,
			}, &resp)
			if err != nil {
				return err
			}
			return printPayment(cmd.OutOrStdout(), opts.json, resp)
		},
	}
	cmd.Flags().StringVar(&payee, "payee", "", "Payee account id")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in base units")
	cmd.Flags().StringVar(&instrument, "instrument", "", "Instrument tag, e.g. USD/EUR")
	_ = cmd.MarkFlagRequired("payee")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func submitRateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit-rate [payment-id] [rate]",
		Short: "Submit a rate as oracle --as; rates accept decimals (1.25) or scaled integers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.PaymentResponse
			err := opts.client().do(cmd.Context(), http.MethodPost, paymentPath(args[0], "/rates"),
				map[string]string{"rate": args[1]}, &resp)
			if err != nil {
				return err
			}
			return printPayment(cmd.OutOrStdout(), opts.json, resp)
		},
	}
}

func getCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get [payment-id]",
		Short: "Show a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.PaymentResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, paymentPath(args[0]), nil, &resp); err != nil {
				return err
			}
			return printPayment(cmd.OutOrStdout(), opts.json, resp)
		},
	}
}

func eventsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events [payment-id]",
		Short: "List a payment's events in commit order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.EventsResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, paymentPath(args[0], "/events"), nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, resp)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tTYPE\tOCCURRED\tDETAIL")
			for _, e := range resp.Events {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Sequence, e.Type, e.OccurredAt.Format(time.RFC3339), eventDetail(e))
			}
			return tw.Flush()
		},
	}
}

func oraclesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "oracles",
		Short: "List the oracle roster and quorum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp handler.OraclesResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/v1/oracles", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, resp)
			}
			fmt.Fprintf(out, "quorum: %d of %d\n", resp.Quorum, len(resp.Oracles))
			for _, o := range resp.Oracles {
				fmt.Fprintln(out, "  "+o)
			}
			return nil
		},
	}
}

func balanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [account]",
		Short: "Show an account's ledger balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.BalanceResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/v1/accounts/"+args[0]+"/balance", nil, &resp); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", resp.Account, resp.Balance)
			return nil
		},
	}
}

func fundCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fund [amount]",
		Short: "Add liquidity to the escrow pool (requires --admin-token)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/v1/admin/liquidity",
				map[string]string{"amount": args[0]}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pool funded with %s\n", args[0])
			return nil
		},
	}
}

func printPayment(out io.Writer, asJSON bool, p handler.PaymentResponse) error {
	if asJSON {
		return writeJSON(out, p)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "payment\t%s\n", p.PaymentID)
	fmt.Fprintf(tw, "payer -> payee\t%s -> %s\n", p.Payer, p.Payee)
	fmt.Fprintf(tw, "amount\t%s %s\n", p.Amount, p.Instrument)
	fmt.Fprintf(tw, "submissions\t%d\n", p.SubmissionCount)

	oracles := make([]string, 0, len(p.Rates))
	for o := range p.Rates {
		oracles = append(oracles, o)
	}
	sort.Strings(oracles)
	for _, o := range oracles {
		fmt.Fprintf(tw, "  %s\t%s\n", o, p.Rates[o])
	}

	if p.Settled {
		fmt.Fprintf(tw, "settled\tyes\n")
		fmt.Fprintf(tw, "rate\t%s (%s)\n", p.AggregatedRateText, p.AggregatedRate)
		fmt.Fprintf(tw, "settled amount\t%s\n", p.SettledAmount)
		fmt.Fprintf(tw, "remainder\t%s\n", p.Remainder)
	} else {
		fmt.Fprintf(tw, "settled\tno\n")
	}
	return tw.Flush()
}

func eventDetail(e handler.EventResponse) string {
	var parts []string
	if e.Payer != "" || e.Payee != "" {
		parts = append(parts, e.Payer+"->"+e.Payee)
	}
	if e.SettledAmount != "" {
		parts = append(parts, "amount="+e.SettledAmount)
	}
	if e.Rate != "" {
		parts = append(parts, "rate="+e.Rate)
	}
	if e.Remainder != "" {
		parts = append(parts, "remainder="+e.Remainder)
	}
	return strings.Join(parts, " ")
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
