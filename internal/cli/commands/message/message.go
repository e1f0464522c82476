package message

import (
	"github.com/spf13/cobra"
)

// MessageCmd represents the message command group
var MessageCmd = &cobra.Command{
	Use:     "message",
	Aliases: []string{"messages", "msg", "m"},
	Short:   "Work a ticket thread",
	Long: `Post, list, edit and delete the messages of a ticket.

A message may carry a status change, attachments and an hour appointment.
They are saved in that order after the message itself.

Examples:
  # Reply on a ticket
  desk message send SC-2024-00012 -m "Deployed the fix, please verify"

  # Reply, start attendance and log the time spent
  desk message send SC-2024-00012 -m "Investigating" --status attendance \
    --date 2024-05-02 --time 09:00-10:30

  # Attach evidence and a specification with its estimate
  desk message send SB-2024-00003 -m "Proposal attached" \
    --attach screenshot.png,evidence --attach proposal.pdf,spec,12

  # Read the thread
  desk message list SC-2024-00012 --page 2`,
}

func init() {
	MessageCmd.AddCommand(sendCmd)
	MessageCmd.AddCommand(listCmd)
	MessageCmd.AddCommand(editCmd)
	MessageCmd.AddCommand(deleteCmd)
}
