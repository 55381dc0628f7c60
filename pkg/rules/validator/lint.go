package validator

import (
	"fmt"
	"strings"

	"mercator-hq/agentgov/pkg/rules"
)

// HighRiskWeight is the risk weight above which a rule is expected to block.
const HighRiskWeight = 50

// broadPatterns match (nearly) every input.
var broadPatterns = map[string]bool{
	".*":     true,
	".+":     true,
	"^.*$":   true,
	"^.+$":   true,
	"^.*":    true,
	".*$":    true,
	"(.*)":   true,
	"^(.*)$": true,
}

func lint(report *Report, rs []*rules.Rule) {
	for _, r := range rs {
		if strings.TrimSpace(r.Description) == "" {
			report.add(SeverityInfo, CodeMissingDescription, "rule has no description",
				"describe what the rule protects against", r.ID)
		}
		if len(r.Tags) == 0 {
			report.add(SeverityInfo, CodeMissingTags, "rule has no tags",
				"tag the rule so it can be filtered", r.ID)
		}

		deny := r.HasAction(rules.ActionDeny)
		if deny && len(r.Conditions) == 0 {
			report.add(SeverityWarning, CodeUnconditionalDeny, "deny rule has no conditions and blocks every action",
				"add conditions or disable the rule", r.ID)
		}
		if r.RiskWeight >= HighRiskWeight && !deny && !r.HasAction(rules.ActionRequireApproval) {
			report.add(SeverityWarning, CodeUnguardedRisk,
				fmt.Sprintf("risk weight %d without a deny or require_approval action", r.RiskWeight),
				"add a blocking action or lower the risk weight", r.ID)
		}
		if deny && r.Priority < rules.PriorityHigh {
			report.add(SeverityWarning, CodeLowPriorityDeny,
				fmt.Sprintf("deny rule has priority %d, below %d", r.Priority, rules.PriorityHigh),
				"raise the priority of blocking rules", r.ID)
		}

		for i, c := range r.Conditions {
			if c.Operator != rules.OpMatchesRegex {
				continue
			}
			pattern, _ := c.Value.AsString()
			if isBroadPattern(pattern) {
				report.add(SeverityWarning, CodeBroadRegex,
					fmt.Sprintf("condition %d uses overly broad pattern %q", i, pattern),
					"use exists or a narrower pattern", r.ID)
			}
		}
	}
}

func isBroadPattern(pattern string) bool {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return true
	}
	return broadPatterns[p]
}
