package ticket

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/models"
)

var editCmd = &cobra.Command{
	Use:   "edit [ticket]",
	Short: "Change a ticket's category, module or priority",
	Long: `Change the categorization of a ticket.

Finalized tickets cannot be edited. Each changed field is saved separately
and recorded in the ticket history.

Examples:
  # Raise the priority
  desk ticket edit SC-2024-00012 --priority 1

  # Recategorize
  desk ticket edit SB-2024-00003 --category 4 --module 9`,
	Args: cobra.ExactArgs(1),
	Run:  runEdit,
}

func init() {
	editCmd.Flags().IntP("priority", "p", 0, "New priority id")
	editCmd.Flags().Int("category", 0, "New category id")
	editCmd.Flags().Int("module", 0, "New module id")
}

// editOrder is the order fields are saved in
var editOrder = []models.CategorizationField{models.FieldCategory, models.FieldModule, models.FieldPriority}

func runEdit(cmd *cobra.Command, args []string) {
	changes := map[models.CategorizationField]int{}
	for _, field := range editOrder {
		if id := optionalID(cmd, string(field)); id != nil {
			changes[field] = *id
		}
	}
	if len(changes) == 0 {
		cliutil.Fail(errors.New("nothing to change: pass --category, --module or --priority"))
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

	for _, field := range editOrder {
		valueID, ok := changes[field]
		if !ok {
			continue
		}
		updated, err := ctrl.EditCategorization(ctx, t, field, valueID)
		if err != nil {
			cliutil.Fail(err)
		}
		t = updated
	}

	cliutil.Print(t, func(w io.Writer) {
		fmt.Fprintf(w, "Ticket %s updated\n", t.ExternalID)
		fmt.Fprintf(w, "  Category: %s\n", lookupName(t.Category))
		fmt.Fprintf(w, "  Module:   %s\n", lookupName(t.Module))
		fmt.Fprintf(w, "  Priority: %s\n", lookupName(t.Priority))
	})
}
