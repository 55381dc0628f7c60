/*
Package cli holds helpers shared by the agentgov subcommands.

Output Formatting:

Results print as text, JSON or YAML. Values implementing Tabular render as
aligned columns in text mode:

	f, err := cli.NewFormatter(cli.FormatJSON)
	if err != nil {
		return err
	}
	return f.Write(os.Stdout, status)

Errors:

ConfigError and CommandError wrap failures; ExitCode maps them to the
process exit status.

Signal Handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
