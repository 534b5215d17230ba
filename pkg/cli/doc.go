/*
Package cli holds the shared plumbing of the portunus subcommands:
output formatters, a progress bar, typed command errors, and signal
handling.

Formatting command output:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, records); err != nil {
		return err
	}

Reporting progress for a long run:

	progress := cli.NewProgressReporter(os.Stdout)
	progress.Start(total)
	for i := int64(0); i < total; i++ {
		progress.Update(i + 1)
	}
	progress.Finish()

Stopping cleanly on Ctrl+C:

	ctx := cli.SetupSignalHandler()
	// ctx cancels on the first SIGINT/SIGTERM; a second one exits.

Command failures wrap into CommandError so the top-level error line
names the failing subcommand; flag mistakes use UsageError.
*/
package cli
