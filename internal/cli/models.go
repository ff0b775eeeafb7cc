package cli

import (
	"context"
	"encoding/json"
	"time"

	"github.com/leialab/leia/internal/config"
	"github.com/leialab/leia/pkg/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the validated models of a running service",
	Long: `List the validated models of a running service. The list is read
from the shared store, where the service mirrors it after provider
validation; an empty list means no service has validated providers yet.`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}

	st, err := store.Open(store.Config{Path: cfg.Store.Path, Logger: zerolog.Nop()})
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	raw, ok, err := st.Get(ctx, store.ModelsKey("catalog"))
	if err != nil {
		return err
	}

	var models []string
	if ok {
		if err := json.Unmarshal([]byte(raw), &models); err != nil {
			return err
		}
	}

	if len(models) == 0 {
		cmd.Println("no validated models")
		return nil
	}
	for _, name := range models {
		cmd.Println(name)
	}
	return nil
}
