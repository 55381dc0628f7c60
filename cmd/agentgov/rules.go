package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/agentgov/pkg/cli"
	"mercator-hq/agentgov/pkg/rules"
	"mercator-hq/agentgov/pkg/rules/validator"
)

var errLintFailed = errors.New("rule validation failed")

var lintFlags struct {
	presets []string
	dir     string
	strict  bool
	noLint  bool
	format  string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rule sets",
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint [files...]",
	Short: "Validate rule files for conflicts",
	Long: `Validate rule files and presets as one rule set.

The lint command parses each file and runs the conflict validator:
  - Structural validation (ids, priorities, operators, actions)
  - Duplicate ids and duplicate condition sets
  - Contradicting rules (same conditions, deny vs allow)
  - Shadowed rules
  - Lint findings (missing descriptions, broad regexes, ...)

Examples:
  # Lint a file together with the baseline preset
  agentgov rules lint rules.yaml --preset baseline

  # Lint a directory, treating warnings as errors
  agentgov rules lint --dir rules/ --strict

  # JSON output for CI
  agentgov rules lint rules.yaml --format json`,
	RunE: lintRules,
}

var rulesPresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the embedded rule presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		var rows [][]string
		for _, name := range rules.PresetNames() {
			rs, err := rules.LoadPreset(name)
			if err != nil {
				return err
			}
			rows = append(rows, []string{name, strconv.Itoa(len(rs))})
		}
		return cli.TextFormatter{}.Write(cmd.OutOrStdout(), table{header: []string{"PRESET", "RULES"}, rows: rows})
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <preset|file>",
	Short: "Print the rules of a preset or file in priority order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := loadRuleSource(args[0])
		if err != nil {
			return cli.NewCommandError("rules show", err)
		}
		rs = rules.SortByPriority(rs)

		rows := make([][]string, 0, len(rs))
		for _, r := range rs {
			actions := make([]string, len(r.Actions))
			for i, a := range r.Actions {
				actions[i] = string(a.Type)
			}
			rows = append(rows, []string{
				r.ID,
				strconv.Itoa(r.Priority),
				strconv.Itoa(r.RiskWeight),
				strings.Join(actions, ","),
				strconv.FormatBool(r.Enabled),
			})
		}
		return cli.TextFormatter{}.Write(cmd.OutOrStdout(), table{
			header: []string{"ID", "PRIORITY", "WEIGHT", "ACTIONS", "ENABLED"},
			rows:   rows,
		})
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesLintCmd, rulesPresetsCmd, rulesShowCmd)

	rulesLintCmd.Flags().StringSliceVarP(&lintFlags.presets, "preset", "p", nil, "embedded presets to include")
	rulesLintCmd.Flags().StringVarP(&lintFlags.dir, "dir", "d", "", "directory of rule files")
	rulesLintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
	rulesLintCmd.Flags().BoolVar(&lintFlags.noLint, "no-lint", false, "report only structural and conflict issues")
	rulesLintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json, yaml")
}

func lintRules(cmd *cobra.Command, args []string) error {
	files := append([]string(nil), args...)
	if lintFlags.dir != "" {
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(lintFlags.dir, pattern))
			if err != nil {
				return fmt.Errorf("failed to list rule files: %w", err)
			}
			files = append(files, matches...)
		}
	}
	if len(files) == 0 && len(lintFlags.presets) == 0 {
		return fmt.Errorf("at least one file, --dir or --preset must be specified")
	}

	var all []*rules.Rule
	for _, name := range lintFlags.presets {
		rs, err := rules.LoadPreset(name)
		if err != nil {
			return cli.NewCommandError("rules lint", err)
		}
		all = append(all, rs...)
	}
	for _, f := range files {
		rs, err := rules.LoadFile(f)
		if err != nil {
			return cli.NewCommandError("rules lint", err)
		}
		all = append(all, rs...)
	}

	var opts []validator.Option
	if lintFlags.noLint {
		opts = append(opts, validator.WithoutLint())
	}
	report := validator.Validate(all, opts...)

	out := cmd.OutOrStdout()
	if lintFlags.format == string(cli.FormatText) || lintFlags.format == "" {
		for _, issue := range report.Issues {
			fmt.Fprintln(out, issue.String())
		}
		errs := len(report.Filter(validator.SeverityError))
		warns := len(report.Filter(validator.SeverityWarning))
		fmt.Fprintf(out, "%d rules checked: %d error(s), %d warning(s)\n", report.RulesChecked, errs, warns)
	} else {
		f, err := formatter(lintFlags.format)
		if err != nil {
			return err
		}
		if err := f.Write(out, report); err != nil {
			return err
		}
	}

	if report.HasErrors() || (lintFlags.strict && len(report.Filter(validator.SeverityWarning)) > 0) {
		return cli.NewCommandError("rules lint", errLintFailed)
	}
	return nil
}

// loadRuleSource loads a rule file when source names one, else a preset.
func loadRuleSource(source string) ([]*rules.Rule, error) {
	if ext := filepath.Ext(source); ext == ".yaml" || ext == ".yml" {
		return rules.LoadFile(source)
	}
	return rules.LoadPreset(source)
}

// table is a Tabular built from literal rows.
type table struct {
	header []string
	rows   [][]string
}

func (t table) Header() []string { return t.header }
func (t table) Rows() [][]string { return t.rows }
