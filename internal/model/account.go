package model

import "time"

// Status is the lifecycle state of an account as stored in
// `users.status`.  The numeric values are part of the public API: the
// admin surface accepts them directly and tokens embed them.
type Status uint8

const (
	StatusInactive  Status = 0 // registered but never logged in
	StatusActive    Status = 1
	StatusSuspended Status = 2
	StatusBanned    Status = 3
)

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool { return s <= StatusBanned }

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	case StatusBanned:
		return "banned"
	}
	return "unknown"
}

// Blocked reports whether the account may not log in at all.
func (s Status) Blocked() bool { return s == StatusSuspended || s == StatusBanned }

// Role is the authorization tier of an account (`users.role`).  Roles
// are ordered: guest < user < admin.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Tier returns the ordinal of the role.  Unknown roles rank below guest.
func (r Role) Tier() int {
	switch r {
	case RoleGuest:
		return 1
	case RoleUser:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool { return r.Tier() >= min.Tier() && r.Tier() > 0 }

// Account represents a row in the `users` table joined with its
// `user_details` row.  PasswordHash is only populated by lookups that
// need it (login, password change) and must never leave the service
// layer.
//
// Fields:
//
//	ID           primary key, immutable.
//	Email        unique, lower-cased address.
//	PasswordHash bcrypt digest.
//	Status       lifecycle state.
//	Verified     email verified by an admin or confirmation flow.
//	Resettable   whether password reset is allowed.
//	Registered   creation timestamp.
//	LastLogin    last successful login (nil until the first login).
//	ForceLogout  monotonic session invalidation counter.
//	Role         authorization tier.
//	Profile      the 1:1 user_details row (nil when missing).
type Account struct {
	ID           uint64
	Email        string
	PasswordHash string
	Status       Status
	Verified     bool
	Resettable   bool
	Registered   time.Time
	LastLogin    *time.Time
	ForceLogout  uint32
	Role         Role
	Profile      *Profile
}

// Profile mirrors the `user_details` table.  Optional columns are
// pointers so that NULL survives a round trip.
type Profile struct {
	FirstName  string
	LastName   string
	Address    *string
	City       *string
	State      *string
	Country    *string
	PostalCode *string
	Phone      *string
}

// NewAccount carries the columns written when an account is created.
// Status, flags and counters take their schema defaults.
type NewAccount struct {
	Email        string
	PasswordHash string
	Role         Role
}
