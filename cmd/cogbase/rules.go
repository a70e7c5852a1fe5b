package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/cogbase/memory"
	"github.com/becomeliminal/cogbase/memory/procedural"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage procedural rules",
	}
	cmd.AddCommand(newRulesListCmd(a), newRulesAddCmd(a), newRulesMatchCmd(a))
	return cmd
}

func newRulesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every rule in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.openProcedural("")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rules := m.Rules()
			if len(rules) == 0 {
				fmt.Fprintln(out, "no rules")
				return nil
			}
			for i, r := range rules {
				printRule(cmd, i, r)
			}
			return nil
		},
	}
}

func newRulesAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file.json>",
		Short: "Append the rule or rule list in a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			rules, err := decodeRules(data)
			if err != nil {
				return err
			}
			m, err := a.openProcedural("")
			if err != nil {
				return err
			}
			for _, r := range rules {
				if err := m.AddRule(cmd.Context(), r); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d rules (%d total)\n", len(rules), len(m.Rules()))
			return nil
		},
	}
}

func newRulesMatchCmd(a *app) *cobra.Command {
	var (
		cues      []string
		strategy  string
		threshold float64
		priority  bool
		rank      bool
	)
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Find the rule that best applies to a cue",
		Example: `  cogbase rules match --cue lang=py --cue topic=sort,search
  cogbase rules match --cue lang=py --strategy weighted --threshold 0.5
  cogbase rules match --cue lang=py --priority`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cue, err := parseCue(cues)
			if err != nil {
				return err
			}
			m, err := a.openProcedural(strategy)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case priority:
				r := m.MatchByPriority(cue)
				if r == nil {
					fmt.Fprintln(out, "no rule matched")
					return nil
				}
				printRule(cmd, -1, *r)
			case rank:
				matches, err := m.Rank(cmd.Context(), cue)
				if err != nil {
					return err
				}
				for _, match := range matches {
					fmt.Fprintf(out, "%.4f\trule %d\n", match.Score, match.Index)
				}
			default:
				match, err := m.RetrieveByScore(cmd.Context(), cue, threshold)
				if err != nil {
					return err
				}
				if match == nil {
					fmt.Fprintln(out, "no rule matched")
					return nil
				}
				fmt.Fprintf(out, "score %.4f (%s)\n", match.Score, m.Strategy().Name())
				printRule(cmd, match.Index, match.Rule)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&cues, "cue", nil, "cue condition as key=value[,value2] (repeatable)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "scoring strategy (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum score for a match")
	cmd.Flags().BoolVar(&priority, "priority", false, "exact match by priority instead of scoring")
	cmd.Flags().BoolVar(&rank, "rank", false, "print every rule's score")
	_ = cmd.MarkFlagRequired("cue")
	return cmd
}

// openProcedural opens procedural memory with the named strategy, or the
// configured one when name is empty.
func (a *app) openProcedural(name string) (*procedural.Memory, error) {
	if name == "" {
		name = a.cfg.Memory.Strategy
	}
	opener, err := a.opener()
	if err != nil {
		return nil, err
	}
	strategy, err := procedural.NewStrategy(name, a.embedder, a.cfg.Memory.HybridWeights...)
	if err != nil {
		return nil, err
	}
	return procedural.New(opener, a.memoryConfig(), procedural.WithStrategy(strategy))
}

// parseCue turns key=value[,value2] flags into a cue. A single value is a
// string condition, several values a list.
func parseCue(flags []string) (procedural.Cue, error) {
	cue := procedural.Cue{}
	for _, f := range flags {
		key, raw, ok := strings.Cut(f, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: cue %q is not key=value", memory.ErrValidation, f)
		}
		values := strings.Split(raw, ",")
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}
		if len(values) == 1 {
			cue[key] = procedural.String(values[0])
		} else {
			cue[key] = procedural.List(values...)
		}
	}
	return cue, nil
}

// decodeRules accepts a single rule object or an array of rules.
func decodeRules(data []byte) ([]procedural.Rule, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var rules []procedural.Rule
		if err := json.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("%w: decode rules: %v", memory.ErrValidation, err)
		}
		return rules, nil
	}
	var r procedural.Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: decode rule: %v", memory.ErrValidation, err)
	}
	return []procedural.Rule{r}, nil
}

func printRule(cmd *cobra.Command, index int, r procedural.Rule) {
	out := cmd.OutOrStdout()
	if index >= 0 {
		fmt.Fprintf(out, "rule %d (priority %d)\n", index, r.Priority)
	} else {
		fmt.Fprintf(out, "rule (priority %d)\n", r.Priority)
	}
	fmt.Fprint(out, memory.Indent(r.Describe()))
	for _, action := range r.Actions {
		fmt.Fprintf(out, "    -> %s\n", action)
	}
}
