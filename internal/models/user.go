package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Channel names the medium a user proved control of before their account was created.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// ErrInvalidIdentity is returned when a row carries both or neither identity column.
var ErrInvalidIdentity = errors.New("user must have exactly one of email or phone number")

// Identity is either an EmailIdentity or a PhoneIdentity. The unexported marker keeps
// the set closed so a user can never carry both.
type Identity interface {
	Channel() Channel
	Value() string
	isIdentity()
}

// EmailIdentity identifies a user by email address.
type EmailIdentity struct {
	Address string
}

func (EmailIdentity) Channel() Channel { return ChannelEmail }
func (e EmailIdentity) Value() string  { return e.Address }
func (EmailIdentity) isIdentity()      {}

// PhoneIdentity identifies a user by phone number.
type PhoneIdentity struct {
	Number string
}

func (PhoneIdentity) Channel() Channel { return ChannelPhone }
func (p PhoneIdentity) Value() string  { return p.Number }
func (PhoneIdentity) isIdentity()      {}

// ParseIdentifier treats anything containing "@" as an email address and everything else as a phone number.
func ParseIdentifier(identifier string) Identity {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return EmailIdentity{Address: strings.ToLower(identifier)}
	}
	return PhoneIdentity{Number: identifier}
}

// IdentityFromColumns rebuilds the variant from the nullable email/phone_number columns.
func IdentityFromColumns(email, phone *string) (Identity, error) {
	hasEmail := email != nil && strings.TrimSpace(*email) != ""
	hasPhone := phone != nil && strings.TrimSpace(*phone) != ""
	switch {
	case hasEmail && !hasPhone:
		return EmailIdentity{Address: *email}, nil
	case hasPhone && !hasEmail:
		return PhoneIdentity{Number: *phone}, nil
	default:
		return nil, ErrInvalidIdentity
	}
}

// IdentityColumns splits the variant back into the nullable column pair.
func IdentityColumns(id Identity) (email, phone *string) {
	switch v := id.(type) {
	case EmailIdentity:
		return &v.Address, nil
	case PhoneIdentity:
		return nil, &v.Number
	}
	return nil, nil
}

// User captures application-facing fields for a verified account.
type User struct {
	ID           int64
	Identity     Identity
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Email returns the email address, or "" for phone users.
func (u User) Email() string {
	if e, ok := u.Identity.(EmailIdentity); ok {
		return e.Address
	}
	return ""
}

// PhoneNumber returns the phone number, or "" for email users.
func (u User) PhoneNumber() string {
	if p, ok := u.Identity.(PhoneIdentity); ok {
		return p.Number
	}
	return ""
}

type userJSON struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MarshalJSON emits whichever identity field is populated and never the password hash.
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(userJSON{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email(),
		PhoneNumber: u.PhoneNumber(),
		CreatedAt:   u.CreatedAt,
	})
}
