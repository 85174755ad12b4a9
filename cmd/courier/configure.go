package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skobkin/courier/internal/config"
)

type configureOptions struct {
	APIID       int
	APIHash     string
	BotToken    string
	Phone       string
	LogLevel    string
	MetricsAddr string
	Notify      bool
}

func newConfigureCmd() *cobra.Command {
	var opts configureOptions
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Store credentials and settings in the config file",
		Long: `Store credentials and settings in the config file.

Only flags that are passed change the stored value. Environment variables
still override the file at startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			stored, err := config.Load(rt.Paths.ConfigFile)
			if err != nil {
				return err
			}
			next := applyConfigure(stored, opts, cmd.Flags().Changed)
			if err := rt.SaveAndApplyConfig(next); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", rt.Paths.ConfigFile)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.APIID, "api-id", 0, "Telegram application id")
	f.StringVar(&opts.APIHash, "api-hash", "", "Telegram application hash")
	f.StringVar(&opts.BotToken, "bot-token", "", "log in as a bot with this token")
	f.StringVar(&opts.Phone, "phone", "", "log in as a user with this phone number")
	f.StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&opts.MetricsAddr, "metrics", "", "serve metrics on this address; empty disables")
	f.BoolVar(&opts.Notify, "notify", true, "show desktop notifications for failures")

	return cmd
}

// applyConfigure copies the flags the user actually passed onto cfg.
func applyConfigure(cfg config.AppConfig, o configureOptions, changed func(string) bool) config.AppConfig {
	if changed("api-id") {
		cfg.Telegram.APIID = o.APIID
	}
	if changed("api-hash") {
		cfg.Telegram.APIHash = o.APIHash
	}
	if changed("bot-token") {
		cfg.Telegram.BotToken = o.BotToken
		if o.BotToken != "" {
			cfg.Telegram.Phone = ""
		}
	}
	if changed("phone") {
		cfg.Telegram.Phone = o.Phone
		if o.Phone != "" {
			cfg.Telegram.BotToken = ""
		}
	}
	if changed("log-level") {
		cfg.Logging.Level = o.LogLevel
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = o.MetricsAddr != ""
		if o.MetricsAddr != "" {
			cfg.Metrics.Addr = o.MetricsAddr
		}
	}
	if changed("notify") {
		cfg.Notifications.Enabled = o.Notify
	}
	return cfg
}
