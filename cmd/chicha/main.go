package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/chicha/internal/config"
	"github.com/PabloGalante/chicha/internal/observability"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "chicha",
	Short: "CHICHA chat assistant backend",
	Long: `chicha hosts the chat composer: dictation into the input buffer, and
dispatch of each utterance to navigation, weather, web search, image
generation or a plain chat reply.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			if err := os.Setenv("CHICHA_CONFIG", configPath); err != nil {
				return err
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// Only serve owns stdout for logs; the other commands print results there.
		var w io.Writer = os.Stderr
		if cmd.Name() == serveCmd.Name() {
			w = os.Stdout
		}
		observability.Setup(w, cfg.LogFormat, cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides CHICHA_CONFIG)")

	rootCmd.AddCommand(serveCmd, sendCmd, dictateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
