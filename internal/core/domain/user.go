package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultStatus is assigned to every new account.
const DefaultStatus = "I am new!"

const minPasswordLength = 5

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Status       string
	PostIDs      []string // oldest first
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser builds an account from already validated input.
func NewUser(email, name, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Status:       DefaultStatus,
		PostIDs:      []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (u *User) SetStatus(status string) {
	u.Status = strings.TrimSpace(status)
	u.touch()
}

func (u *User) touch() {
	u.UpdatedAt = time.Now().UTC()
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- VALIDATION ---

// ValidateSignup checks the signup form and returns one entry per rejected field.
func ValidateSignup(email, name, password string) []FieldError {
	var fields []FieldError
	trimmed := strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(trimmed); err != nil || addr.Address != trimmed {
		fields = append(fields, FieldError{Field: "email", Message: "E-Mail is invalid."})
	}
	if strings.TrimSpace(name) == "" {
		fields = append(fields, FieldError{Field: "name", Message: "Name is required."})
	}
	if utf8.RuneCountInString(strings.TrimSpace(password)) < minPasswordLength {
		fields = append(fields, FieldError{Field: "password", Message: "Password too short!"})
	}
	return fields
}

func ValidateStatus(status string) []FieldError {
	if strings.TrimSpace(status) == "" {
		return []FieldError{{Field: "status", Message: "Status must not be empty."}}
	}
	return nil
}
