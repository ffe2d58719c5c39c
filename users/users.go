package users

import (
	"strings"
	"time"
)

// RoleType represents a user's role within the organisation.
type RoleType string

const (
	RoleAdmin    RoleType = "admin"    // Can manage users, records, and role assignment
	RoleManager  RoleType = "manager"  // Can view the user directory
	RoleEmployee RoleType = "employee" // Regular user, own profile only
)

// roleRank orders the roles by privilege. Unknown roles rank below every
// valid role.
var roleRank = map[RoleType]int{
	RoleEmployee: 0,
	RoleManager:  1,
	RoleAdmin:    2,
}

// IsValid reports whether the role is one of the predefined valid roles.
func (r RoleType) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	default:
		return false
	}
}

// AtLeast reports whether the role meets the minimum required privilege level.
func (r RoleType) AtLeast(min RoleType) bool {
	level, ok := roleRank[r]
	if !ok {
		return false
	}
	minLevel, ok := roleRank[min]
	if !ok {
		return false
	}
	return level >= minLevel
}

// ParseRole safely parses a string into a RoleType.
func ParseRole(roleStr string) (RoleType, bool) {
	role := RoleType(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}

// AllRoles returns all predefined roles in ascending privilege order.
func AllRoles() []RoleType {
	return []RoleType{RoleEmployee, RoleManager, RoleAdmin}
}

// Profile holds the free-form, self-editable part of a user record.
type Profile struct {
	Bio         string `json:"bio,omitempty"`
	Address     string `json:"address,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"` // ISO date, as supplied by the provider
	Avatar      string `json:"avatar,omitempty"`
}

// User is the session principal: the identity record returned by the
// provider on login or profile fetch. It is replaced wholesale on those
// events and never partially updated by the request gateway.
type User struct {
	ID         int64     `json:"id,omitempty"`          // Unique identifier for the user
	Username   string    `json:"username,omitempty"`    // Login identifier - never client-editable
	Email      string    `json:"email,omitempty"`       // User's email address
	FirstName  string    `json:"first_name,omitempty"`  // First name of the user
	LastName   string    `json:"last_name,omitempty"`   // Last name of the user
	Role       RoleType  `json:"role,omitempty"`        // Role - never client-editable
	Phone      string    `json:"phone,omitempty"`       // Contact phone number
	Department string    `json:"department,omitempty"`  // Department the user belongs to
	Profile    Profile   `json:"profile"`               // Self-editable profile attributes
	DateJoined time.Time `json:"date_joined,omitempty"` // Date and time when the user registered
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsAdmin returns true if the user has admin privileges.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
