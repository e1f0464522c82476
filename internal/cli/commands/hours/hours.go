package hours

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/client"
	"github.com/afterdarksys/servicedesk/internal/models"
)

// HoursCmd represents the hours command group
var HoursCmd = &cobra.Command{
	Use:     "hours",
	Aliases: []string{"h"},
	Short:   "Log and report hours",
	Long: `Log hour appointments on tickets and report on logged time.

Client and functional users cannot log hours.

Examples:
  # Log time spent today
  desk hours log SC-2024-00012 --time 09:00-10:30

  # Log for another day and tie it to a message
  desk hours log SC-2024-00012 --date 2024-05-02 --time 14:00-17:45 --message 3f2a...

  # List hours of a ticket
  desk hours list --ticket SC-2024-00012

  # Summarize a project for a month
  desk hours summary --project 7b0c... --from 2024-05-01 --to 2024-05-31`,
}

func init() {
	HoursCmd.AddCommand(logCmd)
	HoursCmd.AddCommand(listCmd)
	HoursCmd.AddCommand(summaryCmd)

	logCmd.Flags().String("date", "", "Appointment date (YYYY-MM-DD, default today)")
	logCmd.Flags().String("time", "", "Appointment range HH:MM-HH:MM (required)")
	logCmd.Flags().String("message", "", "Message id the appointment belongs to")
	logCmd.Flags().String("user", "", "Log for another user (administrators only)")

	for _, c := range []*cobra.Command{listCmd, summaryCmd} {
		c.Flags().String("ticket", "", "Filter by ticket")
		c.Flags().String("project", "", "Filter by project id")
		c.Flags().String("user", "", "Filter by user id")
		c.Flags().String("from", "", "First day (YYYY-MM-DD)")
		c.Flags().String("to", "", "Last day (YYYY-MM-DD)")
	}
}

var logCmd = &cobra.Command{
	Use:   "log [ticket]",
	Short: "Log an hour appointment",
	Args:  cobra.ExactArgs(1),
	Run:   runLog,
}

func runLog(cmd *cobra.Command, args []string) {
	flags := cmd.Flags()
	r, _ := flags.GetString("time")
	start, end, err := cliutil.ParseRange(r)
	if err != nil {
		cliutil.Fail(err)
	}
	date, _ := flags.GetString("date")
	if date == "" {
		date = time.Now().Format(models.DateLayout)
	}
	entry := models.HourEntry{Date: date, Start: start, End: end}

	var messageID, userID *uuid.UUID
	if s, _ := flags.GetString("message"); s != "" {
		id, err := cliutil.ParseUUID("message id", s)
		if err != nil {
			cliutil.Fail(err)
		}
		messageID = &id
	}
	if s, _ := flags.GetString("user"); s != "" {
		id, err := cliutil.ParseUUID("user id", s)
		if err != nil {
			cliutil.Fail(err)
		}
		userID = &id
	}

	ctrl, api, err := cliutil.Controller()
	if err != nil {
		cliutil.Fail(err)
	}
	ctx, cancel := cliutil.Context()
	defer cancel()

	t, err := api.ResolveTicket(ctx, args[0])
	if err != nil {
		cliutil.Fail(err)
	}
	hour, err := ctrl.LogHours(ctx, t, messageID, userID, entry)
	if err != nil {
		cliutil.Fail(err)
	}

	cliutil.Print(hour, func(w io.Writer) {
		fmt.Fprintf(w, "Logged %s h on %s (%s %s-%s)\n",
			hour.Hours().StringFixed(2), t.ExternalID, hour.AppointDate, hour.AppointStart, hour.AppointEnd)
	})
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List hour appointments",
	Run: func(cmd *cobra.Command, args []string) {
		api := cliutil.NewClient()
		ctx, cancel := cliutil.Context()
		defer cancel()

		q, err := hourQuery(ctx, cmd, api)
		if err != nil {
			cliutil.Fail(err)
		}
		list, err := api.ListHours(ctx, q)
		if err != nil {
			cliutil.Fail(err)
		}
		cliutil.Print(list, func(w io.Writer) {
			cliutil.HourTable(w, list.Hours, list.TotalMinutes)
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize logged hours by ticket and user",
	Run: func(cmd *cobra.Command, args []string) {
		api := cliutil.NewClient()
		ctx, cancel := cliutil.Context()
		defer cancel()

		q, err := hourQuery(ctx, cmd, api)
		if err != nil {
			cliutil.Fail(err)
		}
		summary, err := api.HoursSummary(ctx, q)
		if err != nil {
			cliutil.Fail(err)
		}
		cliutil.Print(summary, func(out io.Writer) {
			printTotals(out, "TICKET", summary.ByTicket)
			fmt.Fprintln(out)
			printTotals(out, "USER", summary.ByUser)
			fmt.Fprintf(out, "\nTotal: %s h\n", summary.TotalHours.StringFixed(2))
		})
	},
}

func printTotals(out io.Writer, label string, totals []models.HoursTotal) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\tHOURS\t\n", label)
	for _, t := range totals {
		fmt.Fprintf(w, "%s\t%s\t\n", t.Label, t.Hours.StringFixed(2))
	}
	w.Flush()
}

func hourQuery(ctx context.Context, cmd *cobra.Command, api *client.Client) (client.HourQuery, error) {
	flags := cmd.Flags()
	var q client.HourQuery

	if ref, _ := flags.GetString("ticket"); ref != "" {
		t, err := api.ResolveTicket(ctx, ref)
		if err != nil {
			return q, err
		}
		q.TicketID = &t.ID
	}
	if s, _ := flags.GetString("project"); s != "" {
		id, err := cliutil.ParseUUID("project id", s)
		if err != nil {
			return q, err
		}
		q.ProjectID = &id
	}
	if s, _ := flags.GetString("user"); s != "" {
		id, err := cliutil.ParseUUID("user id", s)
		if err != nil {
			return q, err
		}
		q.UserID = &id
	}
	for _, name := range []string{"from", "to"} {
		s, _ := flags.GetString(name)
		if s == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, s); err != nil {
			return q, fmt.Errorf("invalid --%s %q: expected YYYY-MM-DD", name, s)
		}
	}
	q.From, _ = flags.GetString("from")
	q.To, _ = flags.GetString("to")
	return q, nil
}
