package message

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/models"
)

var editCmd = &cobra.Command{
	Use:   "edit [message-id]",
	Short: "Edit one of your messages",
	Long: `Replace the body of a message you wrote.

Messages can only be edited for a short time after posting.

Examples:
  desk message edit 3f2a9c1e-... -m "Fixed in build 215"`,
	Args: cobra.ExactArgs(1),
	Run:  runEdit,
}

var deleteCmd = &cobra.Command{
	Use:     "delete [message-id]",
	Aliases: []string{"rm"},
	Short:   "Delete one of your messages",
	Args:    cobra.ExactArgs(1),
	Run:     runDelete,
}

func init() {
	editCmd.Flags().StringP("body", "m", "", "New message body")
	editCmd.Flags().String("body-file", "", "Read the new body from a file (- for stdin)")
	deleteCmd.Flags().Bool("force", false, "Skip confirmation prompt")
}

func runEdit(cmd *cobra.Command, args []string) {
	id, err := cliutil.ParseUUID("message id", args[0])
	if err != nil {
		cliutil.Fail(err)
	}
	body, _ := cmd.Flags().GetString("body")
	if path, _ := cmd.Flags().GetString("body-file"); path != "" {
		body, err = readBody(path)
		if err != nil {
			cliutil.Fail(err)
		}
	}
	if strings.TrimSpace(body) == "" {
		cliutil.Fail(errors.New("a new body is required: pass -m or --body-file"))
	}
	if err := models.ValidateBody(body); err != nil {
		cliutil.Fail(err)
	}

	api := cliutil.NewClient()
	ctx, cancel := cliutil.Context()
	defer cancel()

	msg, err := api.UpdateMessage(ctx, id, body)
	if err != nil {
		cliutil.Fail(err)
	}
	cliutil.Print(msg, func(w io.Writer) {
		fmt.Fprintf(w, "Message %s updated\n", msg.ID)
	})
}

func runDelete(cmd *cobra.Command, args []string) {
	id, err := cliutil.ParseUUID("message id", args[0])
	if err != nil {
		cliutil.Fail(err)
	}

	force, _ := cmd.Flags().GetBool("force")
	if !force && !cliutil.Confirm(os.Stdin, os.Stdout, fmt.Sprintf("Delete message %s?", id)) {
		fmt.Println("Cancelled")
		return
	}

	api := cliutil.NewClient()
	ctx, cancel := cliutil.Context()
	defer cancel()

	if err := api.DeleteMessage(ctx, id); err != nil {
		cliutil.Fail(err)
	}
	fmt.Printf("Message %s deleted\n", id)
}
