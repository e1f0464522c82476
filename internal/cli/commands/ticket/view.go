package ticket

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/workflow"
)

var viewCmd = &cobra.Command{
	Use:   "view [ticket]",
	Short: "View a ticket",
	Long: `View detailed information about a ticket.

Examples:
  # View a ticket
  desk ticket view SC-2024-00012

  # View with the first page of the thread
  desk ticket view SC-2024-00012 --thread

  # View linked resources and logged hours
  desk ticket view SC-2024-00012 --resources --hours

  # View the audit trail
  desk ticket view SC-2024-00012 --history`,
	Args: cobra.ExactArgs(1),
	Run:  runView,
}

func init() {
	viewCmd.Flags().Bool("thread", false, "Show the latest messages")
	viewCmd.Flags().Bool("resources", false, "Show linked resources")
	viewCmd.Flags().Bool("hours", false, "Show logged hours")
	viewCmd.Flags().Bool("history", false, "Show the audit trail")
}

type ticketView struct {
	*workflow.Snapshot
	History []models.TicketEvent `json:"history,omitempty"`
}

func runView(cmd *cobra.Command, args []string) {
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
	snap, err := ctrl.Refresh(ctx, t.ID)
	if err != nil {
		cliutil.Fail(err)
	}

	view := ticketView{Snapshot: snap}
	showHistory, _ := cmd.Flags().GetBool("history")
	if showHistory {
		view.History, err = api.TicketHistory(ctx, t.ID)
		if err != nil {
			cliutil.Fail(err)
		}
	}

	flags := cmd.Flags()
	showThread, _ := flags.GetBool("thread")
	showResources, _ := flags.GetBool("resources")
	showHours, _ := flags.GetBool("hours")

	cliutil.Print(view, func(out io.Writer) {
		printTicket(out, snap.Ticket, snap.Resources)

		if showThread && snap.Messages != nil {
			fmt.Fprintf(out, "\nThread (%d messages):\n", snap.Messages.Total)
			cliutil.MessageTable(out, snap.Messages.Items)
		}
		if showResources {
			fmt.Fprintln(out, "\nResources:")
			cliutil.ResourceTable(out, snap.Resources)
		}
		if showHours {
			fmt.Fprintln(out, "\nHours:")
			if snap.Hours == nil {
				fmt.Fprintln(out, "Not available for your role.")
			} else {
				cliutil.HourTable(out, snap.Hours.Hours, snap.Hours.TotalMinutes)
			}
		}
		if showHistory {
			fmt.Fprintln(out, "\nHistory:")
			for _, e := range view.History {
				fmt.Fprintf(out, "  %s  %-20s %s\n", cliutil.FormatTime(e.CreatedAt), e.Action, string(e.Changes))
			}
		}
	})
}

func printTicket(out io.Writer, t *models.Ticket, resources []models.TicketResource) {
	fmt.Fprintf(out, "Ticket: %s\n", t.ExternalID)
	fmt.Fprintln(out, "========================================")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Title:       %s\n", t.Title)
	fmt.Fprintf(out, "Status:      %s\n", t.Status.Name)
	fmt.Fprintf(out, "Priority:    %s\n", lookupName(t.Priority))
	fmt.Fprintf(out, "Category:    %s\n", lookupName(t.Category))
	fmt.Fprintf(out, "Module:      %s\n", lookupName(t.Module))
	if main := models.MainResource(resources); main != nil {
		fmt.Fprintf(out, "Main:        %s\n", cliutil.UserLabel(main.User, &main.UserID))
	}
	if t.IsPrivate {
		fmt.Fprintln(out, "Visibility:  private")
	}
	if t.RefExternalID != nil {
		fmt.Fprintf(out, "Related:     %s\n", *t.RefExternalID)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Description:")
	for _, line := range strings.Split(strings.TrimSpace(t.Description), "\n") {
		fmt.Fprintf(out, "  %s\n", line)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Created:     %s\n", cliutil.FormatTime(t.CreatedAt))
	if t.PlannedEndDate != nil {
		fmt.Fprintf(out, "Planned end: %s\n", t.PlannedEndDate.Format(models.DateLayout))
	}
	if t.ActualEndDate != nil {
		fmt.Fprintf(out, "Finalized:   %s\n", cliutil.FormatTime(*t.ActualEndDate))
	}
}
