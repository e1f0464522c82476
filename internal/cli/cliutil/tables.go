package cliutil

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// UserLabel names a user for table output
func UserLabel(u *models.UserSummary, id *uuid.UUID) string {
	switch {
	case u != nil && u.FullName != "":
		return u.FullName
	case u != nil && u.Email != "":
		return u.Email
	case id != nil:
		return id.String()[:8]
	}
	return "system"
}

// MessageTable writes a thread page
func MessageTable(out io.Writer, msgs []models.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAUTHOR\tDATE\tFLAGS\tMESSAGE")
	for _, m := range msgs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.ID.String()[:8],
			UserLabel(m.Author, m.CreatedBy),
			FormatTime(m.CreatedAt),
			messageFlags(m),
			Truncate(m.Body, 60),
		)
	}
	w.Flush()
}

func messageFlags(m models.Message) string {
	flags := ""
	if m.IsPrivate {
		flags += "P"
	}
	if m.Edited {
		flags += "E"
	}
	if len(m.Attachments) > 0 {
		flags += fmt.Sprintf("A%d", len(m.Attachments))
	}
	if m.Minutes != nil {
		flags += "H"
	}
	if flags == "" {
		return "-"
	}
	return flags
}

// ResourceTable writes the resources of a ticket
func ResourceTable(out io.Writer, resources []models.TicketResource) {
	if len(resources) == 0 {
		fmt.Fprintln(out, "No resources linked.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER ID\tNAME\tMAIN\tLINKED")
	for _, r := range resources {
		main := ""
		if r.IsMain {
			main = "*"
		}
		name := "-"
		if r.User != nil {
			name = UserLabel(r.User, nil)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.UserID, name, main, FormatTime(r.LinkedAt))
	}
	w.Flush()
}

// HourTable writes hour appointments followed by their total
func HourTable(out io.Writer, hours []models.TicketHour, totalMinutes int64) {
	if len(hours) == 0 {
		fmt.Fprintln(out, "No hours logged.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSTART\tEND\tHOURS\tUSER\tTICKET")
	for _, h := range hours {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			h.AppointDate,
			h.AppointStart,
			h.AppointEnd,
			h.Hours().StringFixed(2),
			h.UserID.String()[:8],
			h.TicketID.String()[:8],
		)
	}
	fmt.Fprintf(w, "\t\tTOTAL\t%s\t\t\n", models.MinutesToHours(totalMinutes).StringFixed(2))
	w.Flush()
}
