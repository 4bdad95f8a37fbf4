package workflow

// Identity is an opaque actor as seen by the workflow engine.
type Identity interface {
	// ID uniquely identifies the actor.
	ID() string
	MemberOf(group string) bool
	Role() string

	// IsAdmin grants an administrative override on every step.
	IsAdmin() bool
}

// Actor is a simple Identity, e.g. decoded from a request.
type Actor struct {
	Name     string   `json:"id"`
	Groups   []string `json:"groups,omitempty"`
	RoleName string   `json:"role,omitempty"`
	Admin    bool     `json:"admin,omitempty"`
}

func (a *Actor) ID() string { return a.Name }

func (a *Actor) MemberOf(group string) bool {
	for _, g := range a.Groups {
		if g == group {
			return true
		}
	}
	return false
}

func (a *Actor) Role() string { return a.RoleName }

func (a *Actor) IsAdmin() bool { return a.Admin }

// Authorized reports whether id may act on a step assigned to a.
// Administrators may always act. Unassigned (system-only) steps admit
// nobody else.
func Authorized(a Assignment, id Identity) bool {
	if id == nil {
		return false
	}
	if id.IsAdmin() {
		return true
	}
	switch {
	case a.Actor != "":
		return id.ID() != "" && a.Actor == id.ID()
	case a.Group != "":
		return id.MemberOf(a.Group)
	case a.Role != "":
		return id.Role() == a.Role
	}
	return false
}
