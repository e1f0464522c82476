package ticket

import (
	"github.com/spf13/cobra"
)

// TicketCmd represents the ticket command group
var TicketCmd = &cobra.Command{
	Use:     "ticket",
	Aliases: []string{"tickets", "t"},
	Short:   "Manage tickets",
	Long: `Open, view, categorize and move tickets through their workflow.

Tickets can be referenced by id or by display id (SC-2024-00012).

Examples:
  # Open a new ticket
  desk ticket create --project 7b0c... --title "Invoice export fails" --description "..."

  # List open tickets
  desk ticket list --status open,attendance

  # View a ticket with its thread
  desk ticket view SC-2024-00012 --thread

  # Start working a ticket
  desk ticket status SC-2024-00012 attendance

  # Pause a ticket on behalf of the requester
  desk ticket pause SC-2024-00012

  # Change the priority
  desk ticket edit SC-2024-00012 --priority 2

  # Export a ticket with its thread and history
  desk ticket export SC-2024-00012`,
}

func init() {
	// Add subcommands
	TicketCmd.AddCommand(createCmd)
	TicketCmd.AddCommand(listCmd)
	TicketCmd.AddCommand(viewCmd)
	TicketCmd.AddCommand(editCmd)
	TicketCmd.AddCommand(statusCmd)
	TicketCmd.AddCommand(pauseCmd)
	TicketCmd.AddCommand(requestClosureCmd)
	TicketCmd.AddCommand(exportCmd)
}
