package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to the agent",
	RunE:  runTools,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics for a chat corpus",
	RunE:  runStats,
}

var statsChatKey string

func init() {
	statsCmd.Flags().StringVar(&statsChatKey, "chat", "default", "chat corpus to inspect")
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(statsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	for _, name := range a.tools.List() {
		fmt.Println(name)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.store.ChatStats(cmd.Context(), statsChatKey, nil)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
