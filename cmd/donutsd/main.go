package main

import (
	"fmt"
	"os"

	"github.com/danmuck/donuts/internal/host"
	"github.com/danmuck/donuts/internal/observability"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "donutsd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		address    string
		admin      string
	)
	cmd := &cobra.Command{
		Use:           "donutsd",
		Short:         "Serve donuts commands over a local socket",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := host.DefaultServiceConfig()
			if configPath != "" {
				loaded, err := loadServiceConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("address") {
				cfg.Address = address
			}
			if cmd.Flags().Changed("admin") {
				cfg.AdminListenAddr = admin
			}

			logger := observability.InitLogger("donutsd", os.Stderr)
			logger.Info().Str("address", cfg.Address).Str("config", configPath).Msg("donutsd starting")
			return host.NewServiceWithConfig(cfg).WithLogger(logger).Run()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a donutsd TOML config")
	cmd.Flags().StringVar(&address, "address", "", "listen address (unix:<path>, tcp:<host:port> or a socket path)")
	cmd.Flags().StringVar(&admin, "admin", "", "admin HTTP listen address")
	return cmd
}
