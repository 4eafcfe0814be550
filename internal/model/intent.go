package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Operation is the requested change carried by an intent.
type Operation string

const (
	// OperationSubscribe asks for the email to be active.
	OperationSubscribe Operation = "subscribe"
	// OperationUnsubscribe asks for the email to be inactive.
	OperationUnsubscribe Operation = "unsubscribe"
)

// Intent is a validated subscription request taken from the intent queue.
type Intent struct {
	Operation Operation `json:"operation"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	// Timestamp is the producer's clock and is never written to a record.
	Timestamp int64 `json:"timestamp"`
}

// DisplayName returns the trimmed name or an empty string.
func (i *Intent) DisplayName() string {
	if i.Name == nil {
		return ""
	}
	return strings.TrimSpace(*i.Name)
}

type intentPayload struct {
	Operation *string `json:"operation"`
	Email     *string `json:"email"`
	Name      *string `json:"name"`
	IPAddress *string `json:"ip_address"`
	UserAgent *string `json:"user_agent"`
	Timestamp *int64  `json:"timestamp"`
}

// DecodeIntent parses and validates a queue message body.
// Every failure is a *MalformedMessageError.
func DecodeIntent(body []byte) (*Intent, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	var p intentPayload
	if err := dec.Decode(&p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, malformed(typeErr.Field, "wrong type "+typeErr.Value, nil)
		}
		return nil, malformed("", "invalid json", err)
	}
	if dec.More() {
		return nil, malformed("", "trailing data after json object", nil)
	}

	if p.Operation == nil {
		return nil, malformed("operation", "required", nil)
	}
	op := Operation(*p.Operation)
	if op != OperationSubscribe && op != OperationUnsubscribe {
		return nil, malformed("operation", "must be subscribe or unsubscribe", ErrUnknownOperation)
	}

	if p.Email == nil {
		return nil, malformed("email", "required", nil)
	}
	email, err := NormalizeEmail(*p.Email)
	if err != nil {
		return nil, malformed("email", "", err)
	}

	if op == OperationSubscribe {
		if p.Name == nil {
			return nil, malformed("name", "required for subscribe", nil)
		}
		if err := ValidateName(*p.Name); err != nil {
			return nil, malformed("name", "", err)
		}
	}

	if p.IPAddress == nil {
		return nil, malformed("ip_address", "required", nil)
	}
	if p.UserAgent == nil {
		return nil, malformed("user_agent", "required", nil)
	}
	if p.Timestamp == nil {
		return nil, malformed("timestamp", "required", nil)
	}

	return &Intent{
		Operation: op,
		Email:     email,
		Name:      p.Name,
		IPAddress: *p.IPAddress,
		UserAgent: *p.UserAgent,
		Timestamp: *p.Timestamp,
	}, nil
}

// Encode renders the intent as the queue wire format.
func (i *Intent) Encode() ([]byte, error) {
	return json.Marshal(i)
}

// Transition names the state change an intent produced.
type Transition string

const (
	TransitionCreated         Transition = "created"
	TransitionReactivated     Transition = "reactivated"
	TransitionRefreshed       Transition = "refreshed"
	TransitionDeactivated     Transition = "deactivated"
	TransitionSkippedInactive Transition = "skipped_inactive"
	TransitionSkippedAbsent   Transition = "skipped_absent"
)

// Writes reports whether the transition touches the record store.
func (t Transition) Writes() bool {
	return t != TransitionSkippedInactive && t != TransitionSkippedAbsent
}
