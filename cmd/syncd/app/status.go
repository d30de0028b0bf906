package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/versions"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sessions of a running daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			client, err := newAPIClient(v.GetString(flagServer), v.GetString(flagAPIToken))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runStatus(ctx, client, cmd.OutOrStdout(), cmd.ErrOrStderr(), format)
		},
	}
	cmd.Flags().String("format", "table", "Output format (table or json)")
	return cmd
}

func runStatus(ctx context.Context, client *apiClient, out, errOut io.Writer, format string) error {
	sessions, err := client.sessions(ctx)
	if err != nil {
		return err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SessionID < sessions[j].SessionID })

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}
	if format != "table" {
		return fmt.Errorf("unsupported format %q", format)
	}

	if info, err := client.version(ctx); err == nil {
		if skew := versions.Skew(versions.Version, info.Version); skew != "" {
			_, _ = fmt.Fprintln(errOut, "warning: "+skew)
		}
	}

	return renderSessions(out, sessions, time.Now())
}

func renderSessions(out io.Writer, sessions []pkgsync.SessionView, now time.Time) error {
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Session", "Phase", "Interval", "Errors", "Last Success", "Last Outcome"})

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.SessionID,
			string(s.Phase),
			s.CurrentInterval.String(),
			strconv.FormatUint(uint64(s.ConsecutiveErrors), 10),
			since(s.LastSuccessAt, now),
			outcome(s.LastOutcome),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// since formats t relative to now, "never" when nil
func since(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return now.Sub(*t).Truncate(time.Second).String() + " ago"
}

func outcome(o *pkgsync.Outcome) string {
	switch {
	case o == nil:
		return "-"
	case o.Success:
		return "ok"
	default:
		return string(o.Kind) + ": " + o.Message
	}
}
