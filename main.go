package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type flags struct {
	configPath string
	webhook    bool
	baseURL    string
	path       string
	port       int
	listen     string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "commitquizbot",
		Short:        "Telegram daily CS quiz that turns finished days into GitHub commits",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "path to YAML config (default $CONFIG_PATH)")
	cmd.Flags().BoolVar(&f.webhook, "webhook", false, "receive updates through a webhook instead of polling")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "public base URL for the webhook")
	cmd.Flags().StringVar(&f.path, "path", "/webhook", "webhook path")
	cmd.Flags().IntVar(&f.port, "port", 8000, "port to listen on")
	cmd.Flags().StringVar(&f.listen, "listen", "0.0.0.0", "host to bind")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
