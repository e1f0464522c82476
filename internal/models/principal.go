package models

import "github.com/google/uuid"

// Principal is the acting user, passed explicitly through every layer
type Principal struct {
	UserID    uuid.UUID  `json:"user_id"`
	Role      Role       `json:"role"`
	PartnerID *uuid.UUID `json:"partner_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	Name      string     `json:"name,omitempty"`
}

// IsClient returns true if the principal acts for a customer
func (p Principal) IsClient() bool {
	return p.Role == RoleClient
}

// IsAdmin returns true if the principal is an administrator
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanSeeTicket reports whether the principal may read the ticket at all.
// Clients only see non-private tickets of their own partner.
func (p Principal) CanSeeTicket(t *Ticket) bool {
	if !p.IsClient() {
		return true
	}
	if t.IsPrivate {
		return false
	}
	return p.PartnerID != nil && t.PartnerID != nil && *p.PartnerID == *t.PartnerID
}
