package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tootfill/tootfill/internal/config"
	apperrors "github.com/tootfill/tootfill/internal/errors"
	"github.com/tootfill/tootfill/internal/observability"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration a run would use, after defaults, the config file,
TOOTFILL_* environment variables, and flags have been applied.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration",
				apperrors.WrapConfigInvalid("", err, "invalid configuration"))
			return err
		}

		rendered, err := renderConfig(cfg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

type configView struct {
	Throttle struct {
		Capacity        int     `yaml:"capacity"`
		Interval        string  `yaml:"interval"`
		InitialLevel    int     `yaml:"initial_level"`
		AcquireTimeout  string  `yaml:"acquire_timeout"`
		IntervalCeiling string  `yaml:"interval_ceiling"`
		MaxRPS          float64 `yaml:"max_rps"`
		PacerBurst      int     `yaml:"pacer_burst"`
	} `yaml:"throttle"`
	Fetch struct {
		Timeout      string `yaml:"timeout"`
		UserAgent    string `yaml:"user_agent"`
		MaxBodyBytes int64  `yaml:"max_body_bytes"`
	} `yaml:"fetch"`
	Input   config.InputConfig   `yaml:"input"`
	Logging config.LoggingConfig `yaml:"logging"`
	Metrics config.MetricsConfig `yaml:"metrics"`
	Status  config.StatusConfig  `yaml:"status"`
}

// renderConfig writes durations in their flag form so the output can be
// pasted back into a config file.
func renderConfig(cfg *config.Config) (string, error) {
	var view configView
	view.Throttle.Capacity = cfg.Throttle.Capacity
	view.Throttle.Interval = cfg.Throttle.Interval.String()
	view.Throttle.InitialLevel = cfg.Throttle.InitialLevel
	view.Throttle.AcquireTimeout = cfg.Throttle.AcquireTimeout.String()
	view.Throttle.IntervalCeiling = cfg.Throttle.IntervalCeiling.String()
	view.Throttle.MaxRPS = cfg.Throttle.MaxRPS
	view.Throttle.PacerBurst = cfg.Throttle.PacerBurst
	view.Fetch.Timeout = cfg.Fetch.Timeout.String()
	view.Fetch.UserAgent = cfg.Fetch.UserAgent
	view.Fetch.MaxBodyBytes = cfg.Fetch.MaxBodyBytes
	view.Input = cfg.Input
	view.Logging = cfg.Logging
	view.Metrics = cfg.Metrics
	view.Status = cfg.Status

	data, err := yaml.Marshal(&view)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}
