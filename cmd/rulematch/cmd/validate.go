package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/rulematch/internal/core/rulefile"
)

var validateCmd = &cobra.Command{
	Use:   "validate <rule-file>",
	Short: "Validate every rule in a YAML rule file",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

type validatedEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Cost   int    `json:"cost"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read rule file: %w", err)
	}
	loaded, err := rulefile.Parse(data)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, vr := range loaded {
		entry := validatedEntry{
			ID:     string(vr.ID),
			Name:   vr.Name,
			Status: string(vr.Status),
			Cost:   vr.Condition.Cost(),
		}
		if err := enc.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}
