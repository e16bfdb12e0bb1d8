package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-discovery/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "contact-discovery",
	Short: "Round-based email contact discovery pipeline",
	Long:  "Searches the open web for contact addresses by topic, extracts and classifies candidates, verifies deliverability over DNS and SMTP, and deduplicates results per campaign.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
