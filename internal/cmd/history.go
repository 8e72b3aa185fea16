package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived palettes",
	Long:  "List palettes stored in the archive given by --db, newest first.",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 20, "Maximum number of palettes to list (0 lists all)")
	historyCmd.Flags().Bool("json", false, "Print entries as JSON")

	bindFlags(historyCmd, []flagBinding{
		{"history.limit", "limit"},
		{"history.json", "json"},
	})
}

type historyItem struct {
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source"`
	Fingerprint string    `json:"fingerprint"`
	Colors      []string  `json:"colors"`
	Clusters    int       `json:"clusters"`
	Seed        int64     `json:"seed"`
	WheelSize   int       `json:"wheel_size"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	if viper.GetString("db") == "" {
		return fmt.Errorf("--db is required to list archived palettes")
	}
	store, err := openArchive()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), viper.GetInt("history.limit"))
	if err != nil {
		return err
	}

	items := make([]historyItem, len(entries))
	for i, e := range entries {
		colors := make([]string, len(e.Swatches))
		for j, s := range e.Swatches {
			colors[j] = s.Hex
		}
		items[i] = historyItem{
			CreatedAt:   e.CreatedAt.UTC(),
			Source:      e.Source,
			Fingerprint: e.Fingerprint,
			Colors:      colors,
			Clusters:    e.Clusters,
			Seed:        e.Seed,
			WheelSize:   e.WheelSize,
		}
	}

	w := cmd.OutOrStdout()
	if viper.GetBool("history.json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	for _, it := range items {
		fmt.Fprintf(w, "%s  %-12.12s  k=%d seed=%d size=%d  %s  %s\n",
			it.CreatedAt.Format(time.RFC3339), it.Fingerprint, it.Clusters, it.Seed, it.WheelSize,
			strings.Join(it.Colors, " "), it.Source)
	}
	return nil
}
