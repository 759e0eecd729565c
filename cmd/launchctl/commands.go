package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/launch-advisor/internal/client"
	"github.com/couchcryptid/launch-advisor/internal/domain"
	"github.com/couchcryptid/launch-advisor/internal/rules"
	"github.com/couchcryptid/launch-advisor/internal/sites"
)

type options struct {
	server  string
	timeout time.Duration
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "launchctl",
		Short:         "Query the launch go/no-go advisor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultServer := os.Getenv("LAUNCH_ADVISOR_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "advisor base URL (env LAUNCH_ADVISOR_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON")

	root.AddCommand(
		newSitesCmd(opts),
		newDecideCmd(opts),
		newShowCmd(opts),
		newValidateCmd(),
	)
	return root
}

func (o *options) client() *client.Client {
	return client.New(o.server, o.timeout)
}

func newSitesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List registered launch sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := opts.client().Sites(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, list)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tLAT\tLON")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.4f\n", s.Code, s.Name, s.Lat, s.Lon)
			}
			return tw.Flush()
		},
	}
}

func newDecideCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "decide SITE_CODE LAUNCH_TIME",
		Short: "Request a go/no-go decision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.client().Decide(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, d)
			}
			fmt.Fprintf(out, "Decision:  %s\n", d.DecisionID)
			fmt.Fprintf(out, "Verdict:   %s\n", d.Verdict)
			fmt.Fprintf(out, "Risk:      %d/100\n", d.RiskScore)
			if len(d.RuleCitations) > 0 {
				fmt.Fprintf(out, "Citations: %s\n", strings.Join(d.RuleCitations, ", "))
			}
			fmt.Fprintf(out, "\n%s\n", d.Why)
			return nil
		},
	}
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show DECISION_ID",
		Short: "Show a recorded decision with every rule outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.client().Decision(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, d)
			}
			fmt.Fprintf(out, "%s  %s at %s  %s (%d/100)  decided %s\n\n",
				d.ID, d.SiteCode, d.LaunchTime.Format(time.RFC3339), d.Verdict, d.RiskScore, d.DecidedAt.Format(time.RFC3339))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RULE\tSTATUS\tSEVERITY\tRATIONALE")
			for _, oc := range d.Outcomes {
				fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\n", oc.RuleID, statusLabel(oc), oc.Severity, oc.Rationale)
			}
			return tw.Flush()
		},
	}
}

func statusLabel(oc domain.RuleOutcome) string {
	if oc.Blocking {
		return string(oc.Status) + " (blocking)"
	}
	return string(oc.Status)
}

// newValidateCmd checks a site registry file against the rule table without
// a running server.
func newValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a site registry file and the built-in rule table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			registry, err := sites.Load(file)
			if err != nil {
				fmt.Fprintf(out, "FAIL  sites: %v\n", err)
				return fmt.Errorf("validation failed")
			}
			source := file
			if source == "" {
				source = "embedded registry"
			}
			fmt.Fprintf(out, "PASS  sites: %d sites in %s\n", registry.Len(), source)

			table := rules.Default()
			fmt.Fprintf(out, "PASS  rules: %d rules, total severity %.1f\n", table.Len(), table.TotalSeverity())
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "site registry YAML (default: embedded registry)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
