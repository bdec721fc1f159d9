package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hearthmind/hearth/internal/config"
	"github.com/hearthmind/hearth/internal/store"
	"github.com/spf13/cobra"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect checkpoints without starting the server",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List occupied checkpoint slots",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		metas, err := db.ListCheckpoints()
		if err != nil {
			return err
		}
		if len(metas) == 0 {
			fmt.Println("no checkpoints")
			return nil
		}

		for _, m := range metas {
			kind := "auto"
			if m.Slot >= store.ManualSlotMin {
				kind = "manual"
			}
			name := m.Name
			if name == "" {
				name = "-"
			}
			created := time.UnixMilli(m.CreatedAt).Format(time.RFC3339)
			fmt.Printf("%2d  %-6s  %s  %s\n", m.Slot, kind, created, name)
		}
		return nil
	},
}

var checkpointsDeleteCmd = &cobra.Command{
	Use:   "delete <slot>",
	Short: "Delete a manual checkpoint slot (10-14)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid slot %q", args[0])
		}
		if slot < store.ManualSlotMin || slot > store.ManualSlotMax {
			return fmt.Errorf("only manual slots %d-%d can be deleted", store.ManualSlotMin, store.ManualSlotMax)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ok, err := db.DeleteManualCheckpoint(slot)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("slot %d is empty", slot)
		}
		fmt.Printf("deleted checkpoint slot %d\n", slot)
		return nil
	},
}

func openDB() (*store.DB, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(dbPath)
}

func init() {
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsDeleteCmd)
}
