package message

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/workflow"
)

var sendCmd = &cobra.Command{
	Use:   "send [ticket]",
	Short: "Post a message on a ticket",
	Long: `Post a message on a ticket.

Attachments are given as PATH[,TYPE[,HOURS]]. TYPE is one of evidence,
specification, document or other (default --att-type). Specifications need
an hour estimate.

Hours are logged only for roles allowed to log them; for other roles the
appointment flags are ignored.

Examples:
  desk message send SC-2024-00012 -m "Fixed in build 214"
  desk message send SC-2024-00012 --body-file reply.md --private
  desk message send SC-2024-00012 -m "Closing" --status closure
  desk message send SC-2024-00012 -m "Done" --date 2024-05-02 --time 14:00-15:15`,
	Args: cobra.ExactArgs(1),
	Run:  runSend,
}

func init() {
	sendCmd.Flags().StringP("body", "m", "", "Message body (markdown)")
	sendCmd.Flags().String("body-file", "", "Read the body from a file (- for stdin)")
	sendCmd.Flags().Bool("private", false, "Only visible to staff")
	sendCmd.Flags().StringP("status", "s", "", "Move the ticket to this status")
	sendCmd.Flags().String("date", "", "Appointment date (YYYY-MM-DD, default today)")
	sendCmd.Flags().String("time", "", "Appointment range HH:MM-HH:MM")
	sendCmd.Flags().StringArrayP("attach", "a", nil, "Attach a file: PATH[,TYPE[,HOURS]] (repeatable)")
	sendCmd.Flags().String("att-type", "", "Default attachment type")
	sendCmd.Flags().String("reply-to", "", "Id of the message being answered")
}

func runSend(cmd *cobra.Command, args []string) {
	draft, closeFiles, err := buildDraft(cmd)
	defer closeFiles()
	if err != nil {
		cliutil.Fail(err)
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
	if draft.Hours != nil {
		if dec := ctrl.CanLog(t); !dec.Allowed {
			fmt.Fprintf(os.Stderr, "Note: hours not logged (%s)\n", dec.Reason)
		}
	}

	msg, err := ctrl.PostMessage(ctx, t, draft)
	if err != nil {
		var stepErr *workflow.StepError
		if errors.As(err, &stepErr) && msg != nil {
			fmt.Fprintf(os.Stderr, "Message %s was posted but not every step completed.\n", msg.ID)
		}
		cliutil.Fail(err)
	}

	cliutil.Print(msg, func(w io.Writer) {
		fmt.Fprintf(w, "Message posted on %s (%s)\n", t.ExternalID, msg.ID)
		if draft.StatusID != nil && *draft.StatusID != t.Status.ID {
			fmt.Fprintf(w, "  Status:      %s -> %s\n", t.Status.Name, draft.StatusID.Info().Name)
		}
		if len(msg.Attachments) > 0 {
			fmt.Fprintf(w, "  Attachments: %d\n", len(msg.Attachments))
		}
		if msg.Minutes != nil {
			fmt.Fprintf(w, "  Hours:       %s\n", models.MinutesToHours(int64(*msg.Minutes)).StringFixed(2))
		}
	})
}

// buildDraft reads the flags into a draft. The returned func closes the
// opened attachment files.
func buildDraft(cmd *cobra.Command) (workflow.MessageDraft, func(), error) {
	flags := cmd.Flags()
	var (
		draft workflow.MessageDraft
		files []*os.File
	)
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}

	draft.Body, _ = flags.GetString("body")
	if path, _ := flags.GetString("body-file"); path != "" {
		data, err := readBody(path)
		if err != nil {
			return draft, closeFiles, err
		}
		draft.Body = data
	}
	draft.IsPrivate, _ = flags.GetBool("private")

	if s, _ := flags.GetString("status"); s != "" {
		id, err := cliutil.ParseStatus(s)
		if err != nil {
			return draft, closeFiles, err
		}
		draft.StatusID = &id
	}

	if r, _ := flags.GetString("time"); r != "" {
		start, end, err := cliutil.ParseRange(r)
		if err != nil {
			return draft, closeFiles, err
		}
		date, _ := flags.GetString("date")
		if date == "" {
			date = time.Now().Format(models.DateLayout)
		}
		draft.Hours = &models.HourEntry{Date: date, Start: start, End: end}
	} else if flags.Changed("date") {
		return draft, closeFiles, errors.New("--date needs --time")
	}

	if ref, _ := flags.GetString("reply-to"); ref != "" {
		id, err := cliutil.ParseUUID("message id", ref)
		if err != nil {
			return draft, closeFiles, err
		}
		draft.RefMsgID = &id
	}

	defaultType := models.AttachmentType("")
	if s, _ := flags.GetString("att-type"); s != "" {
		t, err := cliutil.ParseAttachmentType(s)
		if err != nil {
			return draft, closeFiles, err
		}
		defaultType = t
	}
	attach, _ := flags.GetStringArray("attach")
	for _, a := range attach {
		spec, err := cliutil.ParseAttachSpec(a, defaultType)
		if err != nil {
			return draft, closeFiles, err
		}
		f, err := os.Open(spec.Path)
		if err != nil {
			return draft, closeFiles, err
		}
		files = append(files, f)
		draft.Attachments = append(draft.Attachments, workflow.StagedAttachment{
			Name:           filepath.Base(spec.Path),
			Content:        f,
			AttType:        spec.AttType,
			EstimatedHours: spec.EstimatedHours,
		})
	}
	return draft, closeFiles, nil
}

func readBody(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
