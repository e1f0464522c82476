package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of appointment dates
const DateLayout = "2006-01-02"

// TicketHour is an hour appointment logged against a ticket
type TicketHour struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	TicketID     uuid.UUID  `db:"ticket_id" json:"ticket_id"`
	MessageID    *uuid.UUID `db:"message_id" json:"message_id,omitempty"`
	ProjectID    uuid.UUID  `db:"project_id" json:"project_id"`
	Minutes      int        `db:"minutes" json:"minutes"`
	AppointDate  string     `db:"appoint_date" json:"appoint_date"`
	AppointStart string     `db:"appoint_start" json:"appoint_start"`
	AppointEnd   string     `db:"appoint_end" json:"appoint_end"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Hours returns the logged time in decimal hours
func (h TicketHour) Hours() decimal.Decimal {
	return MinutesToHours(int64(h.Minutes))
}

// MinutesToHours converts minutes to hours rounded to two places
func MinutesToHours(minutes int64) decimal.Decimal {
	return decimal.NewFromInt(minutes).Div(decimal.NewFromInt(60)).Round(2)
}

// ParseClock parses an HH:MM time of day into minutes since midnight
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// GetMinutesBetween returns the minutes from start to end on the same day.
// An end at or before the start yields zero, never a negative duration.
func GetMinutesBetween(start, end string) (int, error) {
	s, err := ParseClock(start)
	if err != nil {
		return 0, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return 0, err
	}
	if e <= s {
		return 0, nil
	}
	return e - s, nil
}

// HourEntry is the time-of-day range a user reports
type HourEntry struct {
	Date  string `json:"appoint_date"`
	Start string `json:"appoint_start"`
	End   string `json:"appoint_end"`
}

// Minutes returns the clamped duration of the entry
func (e HourEntry) Minutes() (int, error) {
	return GetMinutesBetween(e.Start, e.End)
}

// Validate checks the date and clock formats
func (e HourEntry) Validate() error {
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return fmt.Errorf("invalid appointment date %q", e.Date)
	}
	_, err := e.Minutes()
	return err
}

// CreateHourInput represents input for logging hours
type CreateHourInput struct {
	TicketID     uuid.UUID  `json:"ticket_id" binding:"required"`
	MessageID    *uuid.UUID `json:"message_id,omitempty"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	AppointDate  string     `json:"appoint_date" binding:"required"`
	AppointStart string     `json:"appoint_start" binding:"required,hhmm"`
	AppointEnd   string     `json:"appoint_end" binding:"required,hhmm"`
	Minutes      *int       `json:"minutes,omitempty" binding:"omitempty,min=0"`
}

// Entry returns the time range of the input
func (in CreateHourInput) Entry() HourEntry {
	return HourEntry{Date: in.AppointDate, Start: in.AppointStart, End: in.AppointEnd}
}

// HourListFilter represents filters for listing hour appointments
type HourListFilter struct {
	TicketID  *uuid.UUID
	ProjectID *uuid.UUID
	UserID    *uuid.UUID
	From      *time.Time
	To        *time.Time
}

// HoursTotal is an aggregated hour figure for one ticket or user
type HoursTotal struct {
	ID      uuid.UUID       `json:"id"`
	Label   string          `json:"label"`
	Minutes int64           `json:"minutes"`
	Hours   decimal.Decimal `json:"hours"`
}

// HoursSummary aggregates logged hours for dashboards
type HoursSummary struct {
	ProjectID    *uuid.UUID      `json:"project_id,omitempty"`
	TotalMinutes int64           `json:"total_minutes"`
	TotalHours   decimal.Decimal `json:"total_hours"`
	ByTicket     []HoursTotal    `json:"by_ticket"`
	ByUser       []HoursTotal    `json:"by_user"`
}
