package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prodbymtr/storefront/auth"
)

var Version = "dev"

type globalFlags struct {
	url      string
	secret   string
	subject  string
	tokenTTL time.Duration
	timeout  time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "storefront-ctl",
		Short:         "Operator tool for the storefront admin API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.url, "url", envOr("STOREFRONT_URL", "http://localhost:3001"), "Base URL of storefront-service")
	pf.StringVar(&flags.secret, "secret", os.Getenv("ADMIN_JWT_SECRET"), "HMAC secret used to mint admin tokens")
	pf.StringVar(&flags.subject, "subject", envOr("USER", "operator"), "Subject recorded in minted tokens")
	pf.DurationVar(&flags.tokenTTL, "token-ttl", 5*time.Minute, "Lifetime of minted tokens")
	pf.DurationVar(&flags.timeout, "timeout", 15*time.Second, "HTTP timeout")

	rootCmd.AddCommand(tokenCmd(flags))
	rootCmd.AddCommand(keepAliveCmd(flags))
	rootCmd.AddCommand(salesCmd(flags))
	rootCmd.AddCommand(ordersCmd(flags))
	return rootCmd
}

func tokenCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a signed admin bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.secret == "" {
				return errMissingSecret
			}
			token, err := auth.IssueToken(flags.secret, flags.subject, flags.tokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func keepAliveCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Inspect or control the database keep-alive",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show ping counters and pause state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient(flags).call(cmd, "GET", "/admin/keepalive", true)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pause",
		Short: "Stop pinging until resumed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient(flags).call(cmd, "POST", "/admin/keepalive/pause", true)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "resume",
		Short: "Resume pinging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient(flags).call(cmd, "POST", "/admin/keepalive/resume", true)
		},
	})
	return cmd
}

func salesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sales",
		Short: "Show sales totals and revenue per product",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient(flags).call(cmd, "GET", "/admin/ventas", true)
		},
	}
}

func ordersCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List the 50 most recent orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient(flags).call(cmd, "GET", "/api/pedidos", false)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
