package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"fulcrum-hq/portunus/pkg/audit"
	"fulcrum-hq/portunus/pkg/cli"
)

var auditFlags struct {
	username string
	path     string
	status   int
	since    string
	limit    int
	format   string
	output   string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
	Long: `Query audit records directly from the configured database.

The subcommands read the same records the /admin/audit endpoint serves,
without needing a running server or an admin credential.

Examples:
  # Show the most recent requests
  portunus audit list

  # Requests by one user over the last day
  portunus audit list --username alice --since 24h

  # Denied requests against the inference routes
  portunus audit list --path /v1/ --status 403

  # Export a week of records for offline analysis
  portunus audit export --since 168h --format csv --output audit.csv`,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit records",
	Long:  `List audit records, newest first.`,
	RunE:  listAudit,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit records",
	Long:  `Export matching audit records as CSV or JSON, to stdout or a file.`,
	RunE:  exportAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd, auditExportCmd)

	for _, c := range []*cobra.Command{auditListCmd, auditExportCmd} {
		c.Flags().StringVarP(&auditFlags.username, "username", "u", "", "filter by username")
		c.Flags().StringVar(&auditFlags.path, "path", "", "filter by request path prefix")
		c.Flags().IntVar(&auditFlags.status, "status", 0, "filter by response status code")
		c.Flags().StringVar(&auditFlags.since, "since", "", "how far back to look (e.g. 1h, 24h, 168h)")
		c.Flags().IntVar(&auditFlags.limit, "limit", 0, "maximum records (default 100, max 1000)")
	}
	auditListCmd.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text, json")
	auditExportCmd.Flags().StringVar(&auditFlags.format, "format", "csv", "output format: csv, json")
	auditExportCmd.Flags().StringVarP(&auditFlags.output, "output", "o", "", "write to file instead of stdout")
}

// queryAudit runs the flag-built query against the configured store.
func queryAudit(cmd *cobra.Command) ([]audit.Record, int64, error) {
	store, _, err := openStore()
	if err != nil {
		return nil, 0, err
	}
	defer store.Close()

	q := audit.Query{
		Username:   auditFlags.username,
		PathPrefix: auditFlags.path,
		StatusCode: auditFlags.status,
		Limit:      auditFlags.limit,
	}
	if auditFlags.since != "" {
		d, err := time.ParseDuration(auditFlags.since)
		if err != nil {
			return nil, 0, cli.NewUsageError("since", auditFlags.since, "not a duration (try 1h, 24h)")
		}
		q.Since = time.Now().UTC().Add(-d)
	}

	// Query needs persistence on regardless of the server's setting;
	// the store either has rows or it does not.
	svc := audit.NewService(audit.Config{DBEnabled: true}, store, nil, nil)
	defer svc.Close()

	records, total, err := svc.Query(cmd.Context(), q)
	if err != nil {
		return nil, 0, cli.NewCommandError("audit", err)
	}
	return records, total, nil
}

func listAudit(cmd *cobra.Command, args []string) error {
	records, total, err := queryAudit(cmd)
	if err != nil {
		return err
	}

	if auditFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, records)
	}

	if len(records) == 0 {
		fmt.Println("No audit records match.")
		return nil
	}

	for _, r := range records {
		user := r.Username
		if user == "" {
			user = "-"
		}
		fmt.Printf("%s  %3d  %-6s %-40s %-16s %4dms\n",
			r.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			r.StatusCode, r.Method, r.Path, user, r.DurationMS)
	}
	fmt.Printf("\n%d shown, %d total\n", len(records), total)
	return nil
}

func exportAudit(cmd *cobra.Command, args []string) error {
	records, _, err := queryAudit(cmd)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if auditFlags.output != "" {
		f, err := os.Create(auditFlags.output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", auditFlags.output, err)
		}
		defer f.Close()
		out = f
	}

	switch auditFlags.format {
	case "json":
		if err := cli.NewFormatter(cli.FormatJSON).FormatTo(out, records); err != nil {
			return err
		}
	case "csv":
		rows := make([][]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, []string{
				r.ID,
				r.Timestamp.UTC().Format(time.RFC3339),
				r.Method,
				r.Path,
				r.Username,
				r.AuthType,
				strconv.Itoa(r.StatusCode),
				strconv.FormatInt(r.DurationMS, 10),
				r.RequestID,
			})
		}
		formatter := &cli.CSVFormatter{Headers: []string{
			"id", "timestamp", "method", "path", "username",
			"auth_type", "status_code", "duration_ms", "request_id",
		}}
		if err := formatter.FormatTo(out, rows); err != nil {
			return err
		}
	default:
		return cli.NewUsageError("format", auditFlags.format, "use csv or json")
	}

	if auditFlags.output != "" {
		fmt.Printf("✓ %d records written to %s\n", len(records), auditFlags.output)
	}
	return nil
}
