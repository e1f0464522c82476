package models

import "strings"

// Role is the closed set of user roles
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleConsultant Role = "consultant"
	RoleFunctional Role = "functional"
	RoleClient     Role = "client"
)

// Valid returns true if the role is valid
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleConsultant, RoleFunctional, RoleClient:
		return true
	}
	return false
}

// IsStaff returns true for roles working on behalf of the service provider
func (r Role) IsStaff() bool {
	return r.Valid() && r != RoleClient
}

// ProjectKind distinguishes support contracts from one-off build projects
type ProjectKind string

const (
	ProjectKindAMS   ProjectKind = "ams"
	ProjectKindBuild ProjectKind = "build"
)

// Valid returns true if the project kind is valid
func (k ProjectKind) Valid() bool {
	return k == ProjectKindAMS || k == ProjectKindBuild
}

// RouteSegment returns the API path segment used for ticket field edits
func (k ProjectKind) RouteSegment() string {
	if k == ProjectKindBuild {
		return "smartbuild"
	}
	return "smartcare"
}

// ExternalPrefix returns the display id prefix for tickets of this kind
func (k ProjectKind) ExternalPrefix() string {
	if k == ProjectKindBuild {
		return "SB"
	}
	return "SC"
}

// ProjectKindFromRoute maps an API path segment back to a project kind
func ProjectKindFromRoute(segment string) (ProjectKind, bool) {
	switch strings.ToLower(segment) {
	case "smartcare":
		return ProjectKindAMS, true
	case "smartbuild":
		return ProjectKindBuild, true
	}
	return "", false
}

// Lookup is an entry of a categorization table (category, module, priority)
type Lookup struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// CategorizationField names a ticket field editable through the field edit endpoints
type CategorizationField string

const (
	FieldCategory CategorizationField = "category"
	FieldModule   CategorizationField = "module"
	FieldPriority CategorizationField = "priority"
)

// Valid returns true if the field is editable
func (f CategorizationField) Valid() bool {
	switch f {
	case FieldCategory, FieldModule, FieldPriority:
		return true
	}
	return false
}

// Column returns the tickets column holding the field's lookup id
func (f CategorizationField) Column() string {
	return string(f) + "_id"
}

// LookupTable returns the table the field's value id references
func (f CategorizationField) LookupTable() string {
	switch f {
	case FieldCategory:
		return "categories"
	case FieldModule:
		return "modules"
	case FieldPriority:
		return "priorities"
	}
	return ""
}
