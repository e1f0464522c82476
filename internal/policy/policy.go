// Package policy decides what a principal may do on a ticket. Role
// permissions live in a casbin model; ticket state rules are layered on top
// and explained through Decision reasons.
package policy

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// Object is a permission target
type Object string

const (
	ObjectTicket         Object = "ticket"
	ObjectStatus         Object = "status"
	ObjectMessage        Object = "message"
	ObjectPrivateMessage Object = "private_message"
	ObjectHours          Object = "hours"
	ObjectResource       Object = "resource"
	ObjectCategorization Object = "categorization"
	ObjectAttachment     Object = "attachment"
	ObjectDashboard      Object = "dashboard"
)

// Action is a permission verb
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && (r.act == p.act || p.act == "*")
`

var defaultPolicies = [][]string{
	{string(models.RoleAdmin), string(ObjectTicket), "*"},
	{string(models.RoleAdmin), string(ObjectStatus), "*"},
	{string(models.RoleAdmin), string(ObjectMessage), "*"},
	{string(models.RoleAdmin), string(ObjectPrivateMessage), "*"},
	{string(models.RoleAdmin), string(ObjectHours), "*"},
	{string(models.RoleAdmin), string(ObjectResource), "*"},
	{string(models.RoleAdmin), string(ObjectCategorization), "*"},
	{string(models.RoleAdmin), string(ObjectAttachment), "*"},
	{string(models.RoleAdmin), string(ObjectDashboard), "*"},

	{string(models.RoleConsultant), string(ObjectTicket), "*"},
	{string(models.RoleConsultant), string(ObjectStatus), string(ActionUpdate)},
	{string(models.RoleConsultant), string(ObjectMessage), "*"},
	{string(models.RoleConsultant), string(ObjectPrivateMessage), "*"},
	{string(models.RoleConsultant), string(ObjectHours), "*"},
	{string(models.RoleConsultant), string(ObjectResource), "*"},
	{string(models.RoleConsultant), string(ObjectCategorization), string(ActionUpdate)},
	{string(models.RoleConsultant), string(ObjectAttachment), "*"},
	{string(models.RoleConsultant), string(ObjectDashboard), string(ActionRead)},

	{string(models.RoleFunctional), string(ObjectTicket), "*"},
	{string(models.RoleFunctional), string(ObjectStatus), string(ActionUpdate)},
	{string(models.RoleFunctional), string(ObjectMessage), "*"},
	{string(models.RoleFunctional), string(ObjectPrivateMessage), "*"},
	{string(models.RoleFunctional), string(ObjectHours), string(ActionRead)},
	{string(models.RoleFunctional), string(ObjectResource), "*"},
	{string(models.RoleFunctional), string(ObjectCategorization), string(ActionUpdate)},
	{string(models.RoleFunctional), string(ObjectAttachment), "*"},
	{string(models.RoleFunctional), string(ObjectDashboard), string(ActionRead)},

	{string(models.RoleClient), string(ObjectTicket), string(ActionRead)},
	{string(models.RoleClient), string(ObjectTicket), string(ActionCreate)},
	{string(models.RoleClient), string(ObjectStatus), string(ActionUpdate)},
	{string(models.RoleClient), string(ObjectMessage), string(ActionRead)},
	{string(models.RoleClient), string(ObjectMessage), string(ActionCreate)},
	{string(models.RoleClient), string(ObjectMessage), string(ActionUpdate)},
	{string(models.RoleClient), string(ObjectMessage), string(ActionDelete)},
	{string(models.RoleClient), string(ObjectResource), string(ActionRead)},
	{string(models.RoleClient), string(ObjectAttachment), string(ActionRead)},
	{string(models.RoleClient), string(ObjectAttachment), string(ActionCreate)},
}

// clientStatuses are the self-service statuses a client may request
var clientStatuses = map[models.StatusID]bool{
	models.StatusPausedByRequester: true,
	models.StatusFinalized:         true,
}

// Decision is the outcome of a business rule check
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow returns a positive decision
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a negative decision with a human readable reason
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Enforcer evaluates role permissions and ticket rules
type Enforcer struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

// NewEnforcer builds an enforcer loaded with the default role policies
func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy model: %w", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if _, err := e.AddPolicies(defaultPolicies); err != nil {
		return nil, fmt.Errorf("failed to load default policies: %w", err)
	}

	return &Enforcer{enforcer: e}, nil
}

// MustNewEnforcer is NewEnforcer for static wiring and tests
func MustNewEnforcer() *Enforcer {
	e, err := NewEnforcer()
	if err != nil {
		panic(err)
	}
	return e
}

// Can reports whether the role holds the permission
func (e *Enforcer) Can(role models.Role, obj Object, act Action) bool {
	if !role.Valid() {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	ok, err := e.enforcer.Enforce(string(role), string(obj), string(act))
	return err == nil && ok
}

// Grant adds a permission at runtime
func (e *Enforcer) Grant(role models.Role, obj Object, act Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.enforcer.AddPolicy(string(role), string(obj), string(act)); err != nil {
		return fmt.Errorf("failed to add policy: %w", err)
	}
	return nil
}

// Revoke removes a permission at runtime
func (e *Enforcer) Revoke(role models.Role, obj Object, act Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.enforcer.RemovePolicy(string(role), string(obj), string(act)); err != nil {
		return fmt.Errorf("failed to remove policy: %w", err)
	}
	return nil
}

// CanView decides whether the principal may read the ticket
func (e *Enforcer) CanView(p models.Principal, t *models.Ticket) Decision {
	if !e.Can(p.Role, ObjectTicket, ActionRead) {
		return Deny("your role cannot view tickets")
	}
	if !p.CanSeeTicket(t) {
		return Deny("ticket not available to your account")
	}
	return Allow()
}

// CanSend decides whether the principal may post a message on the ticket
func (e *Enforcer) CanSend(p models.Principal, t *models.Ticket, private bool) Decision {
	if d := e.CanView(p, t); !d.Allowed {
		return d
	}
	if !e.Can(p.Role, ObjectMessage, ActionCreate) {
		return Deny("your role cannot post messages")
	}
	if private && !e.Can(p.Role, ObjectPrivateMessage, ActionCreate) {
		return Deny("your role cannot post private messages")
	}
	if models.IsTicketFinalized(t) {
		return Deny("ticket is finalized")
	}
	return Allow()
}

// CanLog decides whether the principal may log hours on the ticket
func (e *Enforcer) CanLog(p models.Principal, t *models.Ticket) Decision {
	if p.Role == models.RoleClient || p.Role == models.RoleFunctional {
		return Deny("clients and functional users do not log hours")
	}
	if !e.Can(p.Role, ObjectHours, ActionCreate) {
		return Deny("your role cannot log hours")
	}
	if models.IsTicketFinalized(t) {
		return Deny("ticket is finalized")
	}
	return Allow()
}

// CanChangeStatus decides whether the principal may move the ticket to status
func (e *Enforcer) CanChangeStatus(p models.Principal, t *models.Ticket, to models.StatusID) Decision {
	if d := e.CanView(p, t); !d.Allowed {
		return d
	}
	if !e.Can(p.Role, ObjectStatus, ActionUpdate) {
		return Deny("your role cannot change ticket status")
	}
	if p.IsClient() && t.Status.ID != to && !clientStatuses[to] {
		return Deny("clients may only pause or request closure")
	}
	if err := models.ValidateTransition(t.Status.ID, to); err != nil {
		if models.IsTicketFinalized(t) {
			return Deny("ticket is finalized")
		}
		return Deny(err.Error())
	}
	return Allow()
}

// CanEditCategorization decides whether category, module or priority may change
func (e *Enforcer) CanEditCategorization(p models.Principal, t *models.Ticket) Decision {
	if !e.Can(p.Role, ObjectCategorization, ActionUpdate) {
		return Deny("your role cannot edit categorization")
	}
	if models.IsTicketFinalized(t) {
		return Deny("ticket is finalized")
	}
	return Allow()
}

// CanManageResources decides whether the principal may link, unlink or flag resources
func (e *Enforcer) CanManageResources(p models.Principal, t *models.Ticket) Decision {
	if !e.Can(p.Role, ObjectResource, ActionUpdate) {
		return Deny("your role cannot manage ticket resources")
	}
	if models.IsTicketFinalized(t) {
		return Deny("ticket is finalized")
	}
	return Allow()
}
