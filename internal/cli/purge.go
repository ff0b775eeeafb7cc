package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leialab/leia/internal/config"
	"github.com/leialab/leia/internal/logger"
	"github.com/leialab/leia/pkg/purge"
	"github.com/leialab/leia/pkg/store"
	"github.com/spf13/cobra"
)

var (
	purgeTimeFrame string
	purgeDate      string
	purgeSessionID string
	purgeModelName string
	purgeMetadata  string
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete stored sessions matching the given filters",
	Long: `Delete stored sessions matching the given filters. Exactly one of
--time-frame and --date is required; the remaining filters only narrow
the selection.`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().StringVar(&purgeTimeFrame, "time-frame", "", `relative window ("24h", "2d", "1w", "3m") or "all"`)
	purgeCmd.Flags().StringVar(&purgeDate, "date", "", "absolute cutoff (ISO-8601 or Unix timestamp)")
	purgeCmd.Flags().StringVar(&purgeSessionID, "session-id", "", "exact session id")
	purgeCmd.Flags().StringVar(&purgeModelName, "model", "", "owning model name")
	purgeCmd.Flags().StringVar(&purgeMetadata, "metadata", "", "JSON object of field matches")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	lg, err := logger.New(logger.Config{Level: level, Console: true, Pretty: true, Redaction: true})
	if err != nil {
		return err
	}
	defer lg.Close()

	st, err := store.Open(store.Config{Path: cfg.Store.Path, Logger: lg.GetZerolog()})
	if err != nil {
		return err
	}
	defer st.Close()

	req := purge.Request{
		TimeFrame:    purgeTimeFrame,
		SpecificDate: purgeDate,
		SessionID:    purgeSessionID,
		ModelName:    purgeModelName,
	}
	if purgeMetadata != "" {
		if err := json.Unmarshal([]byte(purgeMetadata), &req.Metadata); err != nil {
			return fmt.Errorf("invalid --metadata value: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	engine := purge.NewEngine(purge.Config{Store: st, Logger: lg.GetZerolog()})
	result, err := engine.Run(ctx, req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	if !result.Success {
		return fmt.Errorf("purge finished with %d batch error(s)", len(result.Errors))
	}
	return nil
}
