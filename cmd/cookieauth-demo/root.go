package main

import (
	"github.com/spf13/cobra"

	"github.com/panyam/cookieauth/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookieauth-demo",
		Short: "Demo host application for cookieauth",
		Long: `Serves the cookieauth email/password and OAuth routes under the
configured auth path, with mails printed to the log.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", ".env file path (default: ./.env when present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCheckConfigCmd())

	return cmd
}

func loadConfig() (*config.Config, error) {
	var opts []config.LoaderOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	if envFile != "" {
		opts = append(opts, config.WithEnvFile(envFile))
	}
	return config.Load(opts...)
}

// NewCheckConfigCmd validates the configuration without serving.
func NewCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the public part",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			public := cfg.Public()
			cmd.Printf("base url:  %s\n", public.BaseURL)
			cmd.Printf("auth path: %s\n", public.AuthPath)
			cmd.Printf("storage:   %s\n", cfg.Storage.Kind)
			for _, p := range enabledProviders(cfg) {
				cmd.Printf("provider:  %s\n", p)
			}
			return nil
		},
	}
}
