package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iliyamo/webshop-accounts/internal/apperr"
	"github.com/iliyamo/webshop-accounts/internal/model"
	"github.com/iliyamo/webshop-accounts/internal/repository"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	maxNameLen    = 50
	maxAddressLen = 255
	maxRegionLen  = 100
	maxShortLen   = 20
	// bcrypt ignores everything past 72 bytes
	maxPasswordBytes = 72
)

// RegisterInput is the body of POST /register.
type RegisterInput struct {
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Address    *string `json:"address,omitempty"`
	City       *string `json:"city,omitempty"`
	State      *string `json:"state,omitempty"`
	Country    *string `json:"country,omitempty"`
	PostalCode *string `json:"postal_code,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

// Validate normalizes the input in place.
func (in *RegisterInput) Validate() error {
	in.Email = repository.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if in.Email == "" || in.Password == "" || in.FirstName == "" || in.LastName == "" {
		return apperr.Validation("Email, password, first name, and last name are required")
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	if tooLong(in.FirstName, maxNameLen) || tooLong(in.LastName, maxNameLen) {
		return apperr.Validation("Names must be at most 50 characters")
	}
	return validateOptional(in.Address, in.City, in.State, in.Country, in.PostalCode, in.Phone)
}

func (in *RegisterInput) profile() model.Profile {
	return model.Profile{
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Address:    trimmed(in.Address),
		City:       trimmed(in.City),
		State:      trimmed(in.State),
		Country:    trimmed(in.Country),
		PostalCode: trimmed(in.PostalCode),
		Phone:      trimmed(in.Phone),
	}
}

// LoginInput is the body of POST /login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in *LoginInput) Validate() error {
	in.Email = repository.NormalizeEmail(in.Email)
	if in.Email == "" || in.Password == "" {
		return apperr.Validation("Email and password are required")
	}
	return validateEmail(in.Email)
}

// ProfileUpdateInput is the body of PUT /me.  Absent fields keep their
// stored value; an empty optional field clears it.
type ProfileUpdateInput struct {
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	Address    *string `json:"address,omitempty"`
	City       *string `json:"city,omitempty"`
	State      *string `json:"state,omitempty"`
	Country    *string `json:"country,omitempty"`
	PostalCode *string `json:"postal_code,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

func (in *ProfileUpdateInput) Validate() error {
	if in.FirstName == nil && in.LastName == nil && in.Address == nil && in.City == nil &&
		in.State == nil && in.Country == nil && in.PostalCode == nil && in.Phone == nil {
		return apperr.Validation("No fields to update")
	}
	for _, name := range []*string{in.FirstName, in.LastName} {
		if name == nil {
			continue
		}
		*name = strings.TrimSpace(*name)
		if *name == "" {
			return apperr.Validation("Names cannot be empty")
		}
		if tooLong(*name, maxNameLen) {
			return apperr.Validation("Names must be at most 50 characters")
		}
	}
	return validateOptional(in.Address, in.City, in.State, in.Country, in.PostalCode, in.Phone)
}

// apply merges the update onto p.
func (in *ProfileUpdateInput) apply(p model.Profile) model.Profile {
	if in.FirstName != nil {
		p.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		p.LastName = *in.LastName
	}
	merge := func(dst **string, src *string) {
		if src != nil {
			*dst = trimmed(src)
		}
	}
	merge(&p.Address, in.Address)
	merge(&p.City, in.City)
	merge(&p.State, in.State)
	merge(&p.Country, in.Country)
	merge(&p.PostalCode, in.PostalCode)
	merge(&p.Phone, in.Phone)
	return p
}

// PasswordChangeInput is the body of PUT /me/password.
type PasswordChangeInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (in *PasswordChangeInput) Validate() error {
	if in.CurrentPassword == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
		return apperr.Validation("Current, new and confirmation passwords are required")
	}
	if in.NewPassword != in.ConfirmPassword {
		return apperr.Validation("New password and confirmation do not match")
	}
	if in.NewPassword == in.CurrentPassword {
		return apperr.Validation("New password must differ from the current password")
	}
	return validatePassword(in.NewPassword)
}

// AdminStatusInput is the body of PATCH /admin/users/:id/status.
type AdminStatusInput struct {
	Status *int `json:"status"`
}

func (in *AdminStatusInput) Validate() error {
	if in.Status == nil {
		return apperr.Validation("Status is required")
	}
	if *in.Status < 0 || !model.Status(*in.Status).Valid() {
		return apperr.Validation("Invalid status. Must be 0-3 (0=inactive, 1=active, 2=suspended, 3=banned)")
	}
	return nil
}

// AdminVerifyInput is the body of PATCH /admin/users/:id/verification.
type AdminVerifyInput struct {
	Verified *bool `json:"verified"`
}

func (in *AdminVerifyInput) Validate() error {
	if in.Verified == nil {
		return apperr.Validation("Verified must be a boolean value")
	}
	return nil
}

// ConfirmEmailInput is the body of POST /confirm-email.
type ConfirmEmailInput struct {
	Selector string `json:"selector"`
	Token    string `json:"token"`
}

func (in *ConfirmEmailInput) Validate() error {
	in.Selector = strings.TrimSpace(in.Selector)
	in.Token = strings.TrimSpace(in.Token)
	if in.Selector == "" || in.Token == "" {
		return apperr.Validation("Selector and token are required")
	}
	return nil
}

func validateEmail(email string) error {
	if len(email) > 249 || !emailRe.MatchString(email) {
		return apperr.Validation("Invalid email format")
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return apperr.Validation("Password must be at least 8 characters long")
	}
	if len(pw) > maxPasswordBytes {
		return apperr.Validation("Password must be at most 72 bytes long")
	}
	var lower, upper, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return apperr.Validation("Password must contain at least one lowercase letter, one uppercase letter and one number")
	}
	return nil
}

// validateOptional checks address, city, state, country, postal code and
// phone, in that order.
func validateOptional(address, city, state, country, postal, phone *string) error {
	limits := []struct {
		v     *string
		max   int
		field string
	}{
		{address, maxAddressLen, "Address"},
		{city, maxRegionLen, "City"},
		{state, maxRegionLen, "State"},
		{country, maxRegionLen, "Country"},
		{postal, maxShortLen, "Postal code"},
		{phone, maxShortLen, "Phone"},
	}
	for _, l := range limits {
		if l.v != nil && tooLong(strings.TrimSpace(*l.v), l.max) {
			return apperr.Validation(l.field + " is too long")
		}
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func tooLong(s string, max int) bool { return utf8.RuneCountInString(s) > max }
