// Package model defines domain models and data structures.
package model

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds subscriber display names.
const MaxNameLength = 200

// Status is the lifecycle state of a subscriber record.
type Status string

const (
	// StatusActive marks a subscriber that receives the newsletter.
	StatusActive Status = "active"
	// StatusInactive marks a subscriber that opted out.
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// ParseStatus converts a raw status, returning ErrInvalidStatus for unknown values.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// Subscriber represents a newsletter subscriber record.
type Subscriber struct {
	ID           string `json:"id"           dynamodbav:"id"`
	Email        string `json:"email"        dynamodbav:"email"`
	Name         string `json:"name"         dynamodbav:"name"`
	Status       Status `json:"status"       dynamodbav:"status"`
	SubscribedAt int64  `json:"subscribed_at" dynamodbav:"subscribed_at"`
	UpdatedAt    int64  `json:"updated_at"   dynamodbav:"updated_at"`
	IPAddress    string `json:"ip_address"   dynamodbav:"ip_address"`
	UserAgent    string `json:"user_agent"   dynamodbav:"user_agent"`
}

// ListParams filters and pages an admin listing.
type ListParams struct {
	Limit     int
	NextToken string
	Status    Status // empty means all statuses
}

// SubscriberPage is one page of an admin listing.
type SubscriberPage struct {
	Subscribers []*Subscriber `json:"subscribers"`
	NextToken   *string       `json:"next_token"`
	Count       int           `json:"count"`
}

// Stats summarises the subscriber table.
type Stats struct {
	TotalSubscribers int `json:"total_subscribers"`
	ActiveCount      int `json:"active_count"`
	InactiveCount    int `json:"inactive_count"`
	Recent24h        int `json:"recent_24h"`
}

// NormalizeEmail trims and validates a bare email address. The domain is
// case-insensitive and is returned lowercased; the local part is kept as given.
func NormalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndex(email, "@")
	domain := strings.ToLower(email[at+1:])
	if !strings.Contains(domain, ".") {
		return "", ErrInvalidEmail
	}
	return email[:at+1] + domain, nil
}

// ValidateName checks a display name against the length bounds.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 || n > MaxNameLength {
		return ErrInvalidName
	}
	return nil
}

// RequestMeta is the provenance captured from a public request.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// SubscribeRequest is a public sign-up.
type SubscribeRequest struct {
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Meta  RequestMeta `json:"-"`
}

// UnsubscribeRequest is a public opt-out.
type UnsubscribeRequest struct {
	Email string      `json:"email"`
	Meta  RequestMeta `json:"-"`
}

// NotFoundStatus is reported by the public status lookup for unknown emails.
const NotFoundStatus = "not_found"

// SubscriptionStatus is the public view of one email.
type SubscriptionStatus struct {
	Email        string `json:"email"`
	Status       string `json:"status"`
	SubscribedAt *int64 `json:"subscribed_at,omitempty"`
	UpdatedAt    *int64 `json:"updated_at,omitempty"`
}
