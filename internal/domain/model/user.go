package model

import (
	"net/mail"
	"strings"
	"time"

	"sri-invoice-subscription/internal/domain"

	"github.com/google/uuid"
)

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountInactive, AccountSuspended:
		return true
	}
	return false
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// PortalCredentials are the tax-portal login the downloader replays.
// The password is only ever held encrypted.
type PortalCredentials struct {
	Username          string `json:"username"`
	EncryptedPassword string `json:"-"`
}

// User is the account record; it owns exactly one CreditLedger.
type User struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	PasswordHash string             `json:"-"`
	Name         string             `json:"name"`
	RUC          string             `json:"ruc,omitempty"`
	Status       AccountStatus      `json:"status"`
	Role         Role               `json:"role"`
	Ledger       CreditLedger       `json:"ledger"`
	Devices      []Device           `json:"devices,omitempty"`
	Portal       *PortalCredentials `json:"portal,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	LastLoginAt  *time.Time         `json:"lastLoginAt,omitempty"`
}

// NewUser validates the registration fields and attaches a free-tier ledger.
func NewUser(id, email, passwordHash, name, ruc string, now time.Time) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", "is required")
	}
	if passwordHash == "" {
		return nil, domain.NewValidationError("password", "is required")
	}
	ruc = strings.TrimSpace(ruc)
	if ruc != "" && !ValidRUC(ruc) {
		return nil, domain.NewValidationError("ruc", "must be 13 digits")
	}
	return &User{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		RUC:          ruc,
		Status:       AccountActive,
		Role:         RoleUser,
		Ledger:       NewLedger(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (u *User) IsZero() bool   { return u == nil || u.ID == "" }
func (u *User) IsActive() bool { return u != nil && u.Status == AccountActive }
func (u *User) IsAdmin() bool  { return u != nil && u.Role == RoleAdmin }

// NormalizeEmail lowercases and validates an address.
func NormalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", domain.NewValidationError("email", "is not a valid address")
	}
	return s, nil
}

// ValidRUC checks the shape of an Ecuadorian taxpayer id (13 digits ending in 001).
func ValidRUC(s string) bool {
	if len(s) != 13 || !strings.HasSuffix(s, "001") {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
