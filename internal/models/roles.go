package models

import "fmt"

// RoleName is the seeded name of a role.
type RoleName string

const (
	RoleAdmin    RoleName = "admin"
	RoleEmployee RoleName = "employee"
)

// Role is static reference data seeded at migration time.
type Role struct {
	ID   int64    `json:"id"`
	Name RoleName `json:"role_name"`
}

// UserRole associates a user with a role.
type UserRole struct {
	UserID    int64 `json:"user_id"`
	RoleID    int64 `json:"role_id"`
	Onboarded bool  `json:"onboarded"`
}

// RoleCatalog resolves role names to the ids assigned by the seed data. It is built once at
// startup and passed to whatever needs to know which id is the administrator.
type RoleCatalog struct {
	byID   map[int64]Role
	byName map[RoleName]Role
}

// NewRoleCatalog indexes the seeded roles. The administrator role must be present.
func NewRoleCatalog(roles []Role) (*RoleCatalog, error) {
	c := &RoleCatalog{
		byID:   make(map[int64]Role, len(roles)),
		byName: make(map[RoleName]Role, len(roles)),
	}
	for _, r := range roles {
		c.byID[r.ID] = r
		c.byName[r.Name] = r
	}
	if _, ok := c.byName[RoleAdmin]; !ok {
		return nil, fmt.Errorf("role catalog: %q role is not seeded", RoleAdmin)
	}
	return c, nil
}

// ID returns the id seeded for name.
func (c *RoleCatalog) ID(name RoleName) (int64, bool) {
	r, ok := c.byName[name]
	return r.ID, ok
}

// IsAdmin reports whether id is the administrator role.
func (c *RoleCatalog) IsAdmin(id int64) bool {
	r, ok := c.byID[id]
	return ok && r.Name == RoleAdmin
}

// ContainsAdmin reports whether ids includes the administrator role.
func (c *RoleCatalog) ContainsAdmin(ids []int64) bool {
	for _, id := range ids {
		if c.IsAdmin(id) {
			return true
		}
	}
	return false
}
