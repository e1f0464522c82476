package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTicketFinalized(t *testing.T) {
	tests := []struct {
		name   string
		ticket *Ticket
		want   bool
	}{
		{"nil ticket", nil, false},
		{"open", &Ticket{Status: StatusOpen.Info()}, false},
		{"finalized by id", &Ticket{Status: Status{ID: StatusFinalized}}, true},
		{"finalized by name only", &Ticket{Status: Status{Name: "finalizado"}}, true},
		{"paused", &Ticket{Status: StatusPausedByRequester.Info()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTicketFinalized(tt.ticket))
		})
	}
}

func TestTicket_CanEditCategorization(t *testing.T) {
	open := &Ticket{Status: StatusInAttendance.Info()}
	assert.NoError(t, open.CanEditCategorization())

	done := &Ticket{Status: StatusFinalized.Info()}
	assert.True(t, errors.Is(done.CanEditCategorization(), ErrTicketFinalized))
}

func TestTicket_ApplyStatus(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("finalizing closes the ticket", func(t *testing.T) {
		tk := &Ticket{Status: StatusInAttendance.Info(), Version: 2}
		changed, err := tk.ApplyStatus(StatusFinalized, now)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, tk.IsClosed)
		require.NotNil(t, tk.ActualEndDate)
		assert.Equal(t, now, *tk.ActualEndDate)
		assert.Equal(t, 3, tk.Version)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		tk := &Ticket{Status: StatusOpen.Info(), Version: 1}
		changed, err := tk.ApplyStatus(StatusOpen, now)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, 1, tk.Version)
	})

	t.Run("illegal transition leaves ticket untouched", func(t *testing.T) {
		tk := &Ticket{Status: StatusFinalized.Info(), IsClosed: true}
		_, err := tk.ApplyStatus(StatusInAttendance, now)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Equal(t, StatusFinalized, tk.Status.ID)
	})

	t.Run("name-only finalized is treated as terminal", func(t *testing.T) {
		tk := &Ticket{Status: Status{Name: FinalizedStatusName}}
		_, err := tk.ApplyStatus(StatusOpen, now)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})
}

func TestPrincipal_CanSeeTicket(t *testing.T) {
	partner := uuid.New()
	other := uuid.New()

	client := Principal{UserID: uuid.New(), Role: RoleClient, PartnerID: &partner}
	staff := Principal{UserID: uuid.New(), Role: RoleConsultant}

	own := &Ticket{PartnerID: &partner}
	foreign := &Ticket{PartnerID: &other}
	private := &Ticket{PartnerID: &partner, IsPrivate: true}

	assert.True(t, client.CanSeeTicket(own))
	assert.False(t, client.CanSeeTicket(foreign))
	assert.False(t, client.CanSeeTicket(private))
	assert.True(t, staff.CanSeeTicket(foreign))
	assert.True(t, staff.CanSeeTicket(private))
}

func TestFormatExternalID(t *testing.T) {
	assert.Equal(t, "SC-2026-00042", FormatExternalID(ProjectKindAMS, 2026, 42))
	assert.Equal(t, "SB-2026-12345", FormatExternalID(ProjectKindBuild, 2026, 12345))
}

func TestProjectKindRoutes(t *testing.T) {
	kind, ok := ProjectKindFromRoute("smartbuild")
	require.True(t, ok)
	assert.Equal(t, ProjectKindBuild, kind)
	assert.Equal(t, "smartcare", ProjectKindAMS.RouteSegment())

	_, ok = ProjectKindFromRoute("smartother")
	assert.False(t, ok)
}

func TestCategorizationField(t *testing.T) {
	assert.True(t, FieldModule.Valid())
	assert.False(t, CategorizationField("title").Valid())
	assert.Equal(t, "priority_id", FieldPriority.Column())
	assert.Equal(t, "categories", FieldCategory.LookupTable())
}
