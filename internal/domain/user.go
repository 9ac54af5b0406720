package domain

import (
	"sort"
	"strings"
	"time"
)

// Role is a named capability. Capability roles (User, CABMember, Support)
// are derived from the user's flags and never stored.
type Role string

const (
	RoleUser       Role = "User"
	RoleAdmin      Role = "Admin"
	RoleManager    Role = "Manager"
	RoleSupervisor Role = "Supervisor"
	RoleCABMember  Role = "CABMember"
	RoleSupport    Role = "Support"
)

// AssignableRoles are the roles that may be granted explicitly.
var AssignableRoles = map[Role]bool{
	RoleAdmin:      true,
	RoleManager:    true,
	RoleSupervisor: true,
}

// User is an actor in the workflow.
type User struct {
	ID         string
	Username   string
	Email      string
	FirstName  string
	LastName   string
	Department string

	SupervisorID *string

	IsCABMember        bool
	IsSupportPersonnel bool
	ExtraRoles         []Role

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	return CoalesceStr(u.FullName(), u.Username)
}

// EffectiveRoles computes the role set from the capability flags plus the
// explicit extra roles. The result is sorted and free of duplicates.
func (u *User) EffectiveRoles() []Role {
	set := map[Role]bool{RoleUser: true}
	if u.IsCABMember {
		set[RoleCABMember] = true
	}
	if u.IsSupportPersonnel {
		set[RoleSupport] = true
	}
	for _, r := range u.ExtraRoles {
		if AssignableRoles[r] {
			set[r] = true
		}
	}
	roles := make([]Role, 0, len(set))
	for r := range set {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

func (u *User) HasRole(role Role) bool {
	for _, r := range u.EffectiveRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// IsManager reports whether the user sees supervisor approvals beyond their own.
func (u *User) IsManager() bool {
	return u.HasRole(RoleManager) || u.HasRole(RoleSupervisor) || u.HasRole(RoleAdmin)
}

// SupervisedBy reports whether supervisorID is u's direct supervisor.
func (u *User) SupervisedBy(supervisorID string) bool {
	return u.SupervisorID != nil && *u.SupervisorID == supervisorID
}

// NormalizeRoles validates explicit roles and returns them sorted and deduplicated.
func NormalizeRoles(roles []Role) ([]Role, error) {
	set := map[Role]bool{}
	for _, r := range roles {
		r = Role(strings.TrimSpace(string(r)))
		if r == "" {
			continue
		}
		switch {
		case r == RoleUser || r == RoleCABMember || r == RoleSupport:
			return nil, Invalid("role %s is derived from the user's flags and cannot be assigned", r)
		case !AssignableRoles[r]:
			return nil, Invalid("unknown role %q", r)
		}
		set[r] = true
	}
	out := make([]Role, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
