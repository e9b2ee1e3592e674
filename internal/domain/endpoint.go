// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type EndpointID string

type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleInitiator  Role = "initiator"
	RoleResponder  Role = "responder"
)

// Endpoint is one addressable participant connection.
// IDs are assigned here, never client-supplied.
type Endpoint struct {
	ID             EndpointID `json:"id"`
	Role           Role       `json:"role"`
	DisplayName    string     `json:"display_name"`
	ReachableSince time.Time  `json:"reachable_since"`
}

// NewEndpoint is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewEndpoint(displayName string, role Role) (*Endpoint, error) {
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	if role != RoleInitiator && role != RoleResponder {
		role = RoleUnassigned
	}
	return &Endpoint{
		ID:             EndpointID(uuid.NewString()),
		Role:           role,
		DisplayName:    displayName,
		ReachableSince: time.Now(),
	}, nil
}

func (e *Endpoint) SetDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	e.DisplayName = name
	return nil
}
