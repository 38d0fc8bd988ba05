package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/rulematch/internal/core/rulefile"
	"github.com/solatis/rulematch/internal/records"
	"github.com/solatis/rulematch/internal/rules"
	"github.com/solatis/rulematch/internal/types"
)

var matchCmd = &cobra.Command{
	Use:   "match <rule-file> <records.jsonl|->",
	Short: "Match JSON Lines records against rules from a rule file",
	Long: `match evaluates every record of a JSON Lines file against the rules of a
YAML rule file and prints one JSON result per rule. Use - to read records
from stdin.`,
	Args: cobra.ExactArgs(2),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().String("rule", "", "only match the rule with this name or id")
	matchCmd.Flags().Int("limit", 0, "stop after this many matches per rule (0 = unlimited)")
	matchCmd.Flags().Int("workers", 0, "evaluation workers (0 = configured default)")
	matchCmd.Flags().String("id-field", "id", "attribute holding the record id in flat lines")
}

type matchOutput struct {
	RuleID    string        `json:"rule_id"`
	RuleName  string        `json:"rule_name"`
	Matched   []string      `json:"matched"`
	Errors    []recordError `json:"errors,omitempty"`
	Evaluated int           `json:"evaluated"`
	Truncated bool          `json:"truncated,omitempty"`
}

type recordError struct {
	Index    int    `json:"index"`
	RecordID string `json:"record_id"`
	Message  string `json:"message"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read rule file: %w", err)
	}
	loaded, err := rulefile.Parse(data)
	if err != nil {
		return err
	}
	if name, _ := cmd.Flags().GetString("rule"); name != "" {
		loaded, err = selectRule(loaded, name)
		if err != nil {
			return err
		}
	}

	var in io.Reader = cmd.InOrStdin()
	if args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("open records: %w", err)
		}
		defer f.Close()
		in = f
	}
	idField, _ := cmd.Flags().GetString("id-field")
	src := records.NewJSONLSource(in, records.WithIDField(idField))

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		workers = cfg.Workers
	}
	engine := rules.NewEngine(rules.WithWorkers(workers), rules.WithLogger(logger))
	limit, _ := cmd.Flags().GetInt("limit")

	// A single rule streams the file; several rules share one read
	var sources []rules.RecordSource
	if len(loaded) == 1 {
		sources = []rules.RecordSource{src}
	} else {
		all, err := records.ReadAll(ctx, src)
		if err != nil {
			return fmt.Errorf("read records: %w", err)
		}
		for range loaded {
			sources = append(sources, rules.NewSliceSource(all))
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for i, vr := range loaded {
		result, err := engine.Match(ctx, vr, sources[i], rules.WithLimit(limit))
		if err != nil {
			return fmt.Errorf("match rule %s: %w", vr.Name, err)
		}
		if err := enc.Encode(matchOutputOf(vr, result)); err != nil {
			return err
		}
	}
	return nil
}

func selectRule(loaded []*rules.ValidatedRule, nameOrID string) ([]*rules.ValidatedRule, error) {
	for _, vr := range loaded {
		if vr.Name == nameOrID || string(vr.ID) == nameOrID {
			return []*rules.ValidatedRule{vr}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, nameOrID)
}

func matchOutputOf(vr *rules.ValidatedRule, result *rules.MatchResult) matchOutput {
	out := matchOutput{
		RuleID:    string(result.RuleID),
		RuleName:  vr.Name,
		Matched:   make([]string, 0, len(result.Matched)),
		Evaluated: result.Evaluated,
		Truncated: result.Truncated,
	}
	for _, id := range result.Matched {
		out.Matched = append(out.Matched, string(id))
	}
	for _, e := range result.Errors {
		out.Errors = append(out.Errors, recordError{
			Index:    e.Index,
			RecordID: string(e.RecordID),
			Message:  e.Err.Error(),
		})
	}
	return out
}
