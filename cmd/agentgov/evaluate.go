package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/agentgov/pkg/cli"
	"mercator-hq/agentgov/pkg/payload"
	"mercator-hq/agentgov/pkg/rules"
)

var evaluateFlags struct {
	file        string
	name        string
	category    string
	agent       string
	session     string
	user        string
	environment string
	params      []string
	format      string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one agent action",
	Long: `Evaluate a single agent action against the configured rules and rate
limits. The decision is recorded in the audit trail.

The action is read from --file (JSON, "-" for stdin) or built from flags:

  {"action": {"name": "delete_records", "category": "data_modification"},
   "context": {"environment": "production"}}

Examples:
  agentgov evaluate --name delete_records --category data_modification
  agentgov evaluate --name send_email --param to=ops@example.com --format json
  agentgov evaluate --file action.json`,
	RunE: evaluateAction,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	f := evaluateCmd.Flags()
	f.StringVarP(&evaluateFlags.file, "file", "f", "", "JSON file with action and context")
	f.StringVar(&evaluateFlags.name, "name", "", "action name")
	f.StringVar(&evaluateFlags.category, "category", "", "action category")
	f.StringVar(&evaluateFlags.agent, "agent", "", "agent id")
	f.StringVar(&evaluateFlags.session, "session", "", "session id")
	f.StringVar(&evaluateFlags.user, "user", "", "user id")
	f.StringVar(&evaluateFlags.environment, "environment", "", "business context environment")
	f.StringArrayVar(&evaluateFlags.params, "param", nil, "action parameter as key=value (repeatable)")
	f.StringVar(&evaluateFlags.format, "format", "text", "output format: text, json, yaml")
}

type evaluationInput struct {
	Action  rules.AgentAction     `json:"action"`
	Context rules.BusinessContext `json:"context"`
}

func evaluateAction(cmd *cobra.Command, args []string) error {
	out, err := formatter(evaluateFlags.format)
	if err != nil {
		return err
	}
	in, err := readEvaluationInput(cmd.InOrStdin())
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	ctx := commandContext(cmd)
	svc, err := startService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	result, err := svc.EvaluateAction(ctx, in.Action, in.Context)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	if evaluateFlags.format == string(cli.FormatText) {
		return out.Write(cmd.OutOrStdout(), decisionTable{result})
	}
	return out.Write(cmd.OutOrStdout(), result)
}

func readEvaluationInput(stdin io.Reader) (*evaluationInput, error) {
	in := &evaluationInput{}
	if evaluateFlags.file != "" {
		var data []byte
		var err error
		if evaluateFlags.file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(evaluateFlags.file)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read action: %w", err)
		}
		if err := json.Unmarshal(data, in); err != nil {
			return nil, fmt.Errorf("failed to parse action: %w", err)
		}
		return in, nil
	}

	in.Action = rules.AgentAction{
		Name:      evaluateFlags.name,
		Category:  evaluateFlags.category,
		AgentID:   evaluateFlags.agent,
		SessionID: evaluateFlags.session,
		UserID:    evaluateFlags.user,
	}
	in.Context.Environment = evaluateFlags.environment
	for _, kv := range evaluateFlags.params {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", kv)
		}
		if in.Action.Parameters == nil {
			in.Action.Parameters = payload.Map{}
		}
		in.Action.Parameters[key] = payload.String(value)
	}
	return in, nil
}

// decisionTable renders an evaluation result as FIELD/VALUE rows.
type decisionTable struct {
	r *rules.EvaluationResult
}

func (t decisionTable) Header() []string { return []string{"FIELD", "VALUE"} }

func (t decisionTable) Rows() [][]string {
	rows := [][]string{
		{"status", string(t.r.Status)},
		{"allowed", fmt.Sprint(t.r.Allowed)},
		{"risk", fmt.Sprintf("%d (%s)", t.r.RiskScore, t.r.RiskLevel)},
		{"applied_rules", strings.Join(t.r.AppliedRules, ", ")},
	}
	for _, v := range t.r.Violations {
		rows = append(rows, []string{"violation", fmt.Sprintf("%s: %s", v.RuleID, v.Message)})
	}
	for _, w := range t.r.Warnings {
		rows = append(rows, []string{"warning", w})
	}
	if info := t.r.RateLimitInfo; info != nil && info.LimitID != "" {
		rows = append(rows, []string{"rate_limit", fmt.Sprintf("%s remaining=%d", info.LimitID, info.Remaining)})
	}
	return rows
}
