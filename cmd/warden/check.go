package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/wardenbot/warden/automod/engine"
	"github.com/wardenbot/warden/automod/rulestore"
)

// Prints one line per stored rule: whether it is loaded, inactive, or skipped (and why). Loaded rules are listed in evaluation order.
func printRuleCheck(w io.Writer, guildID string, stored []rulestore.StoredRule, limits engine.TrackerLimits) error {
	var loaded []engine.Rule
	var problems []string
	inactive := 0
	for _, sr := range stored {
		if !sr.Active {
			inactive++
			continue
		}
		rule, err := engine.CompileRule(sr, limits)
		if err != nil {
			problems = append(problems, fmt.Sprintf("SKIP\t%s\t%s\t%v", sr.ID, sr.Type, err))
			continue
		}
		loaded = append(loaded, rule)
	}
	engine.SortRules(loaded)

	fmt.Fprintf(w, "guild %s: %d rules, %d loaded, %d inactive, %d skipped\n", guildID, len(stored), len(loaded), inactive, len(problems))
	for _, r := range loaded {
		fmt.Fprintf(w, "OK\t%s\t%s\t%s\tpriority=%d\n", r.ID, r.Type, r.Action, r.Priority)
	}
	slices.Sort(problems)
	for _, p := range problems {
		fmt.Fprintln(w, p)
	}
	return nil
}
