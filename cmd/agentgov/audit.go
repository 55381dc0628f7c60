package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/audit/query"
	"mercator-hq/agentgov/pkg/cli"
	"mercator-hq/agentgov/pkg/governance"
)

// queryFlags are shared by the audit subcommands that select events.
type queryFlags struct {
	types       []string
	agents      []string
	users       []string
	sessions    []string
	outcomes    []string
	riskLevels  []string
	correlation string
	contains    string
	since       time.Duration
	limit       int
	offset      int
	cursor      string
	asc         bool
}

func (q *queryFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVar(&q.types, "type", nil, "event types")
	f.StringSliceVar(&q.agents, "agent", nil, "agent ids")
	f.StringSliceVar(&q.users, "user", nil, "user ids")
	f.StringSliceVar(&q.sessions, "session", nil, "session ids")
	f.StringSliceVar(&q.outcomes, "outcome", nil, "outcomes: success, failure, pending")
	f.StringSliceVar(&q.riskLevels, "risk-level", nil, "risk levels")
	f.StringVar(&q.correlation, "correlation", "", "correlation id")
	f.StringVar(&q.contains, "contains", "", "substring of the action name")
	f.DurationVar(&q.since, "since", 0, "only events newer than this (e.g. 24h)")
	f.IntVar(&q.limit, "limit", 0, "maximum events (0 uses the configured default)")
	f.IntVar(&q.offset, "offset", 0, "events to skip")
	f.StringVar(&q.cursor, "cursor", "", "continue from a pagination cursor")
	f.BoolVar(&q.asc, "asc", false, "oldest first")
}

func (q *queryFlags) builder(svc *governance.Service) *query.Builder {
	b := svc.Query().
		EventType(q.types...).
		Agent(q.agents...).
		User(q.users...).
		Session(q.sessions...).
		RiskLevel(q.riskLevels...)
	if len(q.outcomes) > 0 {
		outcomes := make([]audit.Outcome, len(q.outcomes))
		for i, o := range q.outcomes {
			outcomes[i] = audit.Outcome(o)
		}
		b.Outcome(outcomes...)
	}
	if q.correlation != "" {
		b.Correlation(q.correlation)
	}
	if q.contains != "" {
		b.ActionContains(q.contains)
	}
	if q.since > 0 {
		b.Since(time.Now().Add(-q.since))
	}
	if q.limit > 0 {
		b.Limit(q.limit)
	}
	if q.offset > 0 {
		b.Offset(q.offset)
	}
	if q.cursor != "" {
		b.After(q.cursor)
	}
	if q.asc {
		b.OrderAsc()
	}
	return b
}

var (
	auditQueryFlags  queryFlags
	auditExportFlags queryFlags
	auditStatsFlags  queryFlags

	auditQueryFormat  string
	auditExportFormat string
	auditExportOutput string
	auditStatsFormat  string
	auditStatsGroupBy string
	auditStatsBucket  string
	auditSyncFix      bool
	auditSyncFormat   string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query, export and reconcile the audit trail",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit events",
	Long: `Query audit events, newest first.

Examples:
  agentgov audit query --type action_evaluated --outcome failure --since 24h
  agentgov audit query --agent agent-7 --limit 20 --format json
  agentgov audit query --limit 50 --cursor <next_cursor>`,
	RunE: runAuditQuery,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit events as JSON or CSV",
	Long: `Export the selected audit events.

Examples:
  agentgov audit export --format csv --output audit.csv --since 168h
  agentgov audit export --type approval_approved`,
	RunE: runAuditExport,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate audit events",
	Long: `Count the selected audit events, grouped by a field and optionally
bucketed into a time series.

Examples:
  agentgov audit stats --group-by outcome
  agentgov audit stats --group-by risk_level --interval day --since 168h`,
	RunE: runAuditStats,
}

var auditSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Check cache/store consistency",
	Long: `Compare the audit cache with the durable store.

With --fix the retry queue is drained and missing events are copied in both
directions.`,
	RunE: runAuditSync,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditExportCmd, auditStatsCmd, auditSyncCmd)

	auditQueryFlags.register(auditQueryCmd)
	auditQueryCmd.Flags().StringVar(&auditQueryFormat, "format", "text", "output format: text, json, yaml")

	auditExportFlags.register(auditExportCmd)
	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "json", "export format: json, csv")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "output file (stdout when empty)")

	auditStatsFlags.register(auditStatsCmd)
	auditStatsCmd.Flags().StringVar(&auditStatsGroupBy, "group-by", string(query.GroupByEventType), "event_type, outcome, risk_level, agent_id or user_id")
	auditStatsCmd.Flags().StringVar(&auditStatsBucket, "interval", "", "time series interval: minute, hour, day, week, month")
	auditStatsCmd.Flags().StringVar(&auditStatsFormat, "format", "text", "output format: text, json, yaml")

	auditSyncCmd.Flags().BoolVar(&auditSyncFix, "fix", false, "reconcile divergences")
	auditSyncCmd.Flags().StringVar(&auditSyncFormat, "format", "text", "output format: text, json, yaml")
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	out, err := formatter(auditQueryFormat)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	svc, err := startService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	page, err := auditQueryFlags.builder(svc).ExecutePaginated(ctx)
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}
	if auditQueryFormat == string(cli.FormatText) {
		if err := out.Write(cmd.OutOrStdout(), eventTable(page.Events)); err != nil {
			return err
		}
		if page.HasMore {
			fmt.Fprintf(cmd.OutOrStdout(), "\nmore results: --cursor %s\n", page.NextCursor)
		}
		return nil
	}
	return out.Write(cmd.OutOrStdout(), page)
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	svc, err := startService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	var w io.Writer = cmd.OutOrStdout()
	if auditExportOutput != "" {
		f, err := os.Create(auditExportOutput)
		if err != nil {
			return cli.NewCommandError("audit export", err)
		}
		defer f.Close()
		w = f
	}

	n, err := svc.Export(ctx, auditExportFlags.builder(svc), auditExportFormat, w)
	if err != nil {
		return cli.NewCommandError("audit export", err)
	}
	if auditExportOutput != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d events to %s\n", n, auditExportOutput)
	}
	return nil
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	out, err := formatter(auditStatsFormat)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	svc, err := startService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	agg, err := auditStatsFlags.builder(svc).Aggregate(ctx, query.AggregateOptions{
		GroupBy:  query.GroupBy(auditStatsGroupBy),
		Interval: query.Interval(auditStatsBucket),
	})
	if err != nil {
		return cli.NewCommandError("audit stats", err)
	}
	if auditStatsFormat != string(cli.FormatText) {
		return out.Write(cmd.OutOrStdout(), agg)
	}

	rows := make([][]string, 0, len(agg.Groups)+len(agg.Series)+1)
	for _, g := range agg.Groups {
		rows = append(rows, []string{"", g.Key, strconv.FormatInt(g.Count, 10)})
	}
	for _, b := range agg.Series {
		for _, g := range b.Groups {
			rows = append(rows, []string{b.Start.Format(time.RFC3339), g.Key, strconv.FormatInt(g.Count, 10)})
		}
	}
	rows = append(rows, []string{"", "total", strconv.FormatInt(agg.Total, 10)})
	return out.Write(cmd.OutOrStdout(), table{header: []string{"PERIOD", "GROUP", "COUNT"}, rows: rows})
}

func runAuditSync(cmd *cobra.Command, args []string) error {
	out, err := formatter(auditSyncFormat)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	svc, err := startService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	if !auditSyncFix {
		status, err := svc.CheckSync(ctx)
		if err != nil {
			return cli.NewCommandError("audit sync", err)
		}
		return out.Write(cmd.OutOrStdout(), status)
	}
	result, err := svc.Sync(ctx)
	if err != nil {
		return cli.NewCommandError("audit sync", err)
	}
	return out.Write(cmd.OutOrStdout(), result)
}

// eventTable renders events one per row.
type eventTable []*audit.Event

func (t eventTable) Header() []string {
	return []string{"TIMESTAMP", "EVENT_ID", "TYPE", "ACTION", "OUTCOME", "AGENT", "RISK"}
}

func (t eventTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, e := range t {
		rows[i] = []string{
			e.Timestamp.Format(time.RFC3339),
			e.EventID,
			e.EventType,
			e.Action,
			string(e.Outcome),
			e.AgentID,
			e.RiskLevel,
		}
	}
	return rows
}
