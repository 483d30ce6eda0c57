package pipeline

import (
	"errors"
	"strconv"
	"strings"
)

// Definition errors. They are returned wrapped in a *DefinitionError that
// names the offending declaration; match them with errors.Is.
var (
	ErrDuplicateName     = errors.New("duplicate component name")
	ErrUnknownProducer   = errors.New("unknown producer")
	ErrPortMismatch      = errors.New("port mismatch")
	ErrInputBound        = errors.New("input port already bound")
	ErrSelfLoop          = errors.New("component wired to itself")
	ErrDuplicateRole     = errors.New("duplicate role")
	ErrDuplicateParty    = errors.New("duplicate party")
	ErrEmptyBinding      = errors.New("role bound to no parties")
	ErrInitiatorNotBound = errors.New("initiator not in role binding")
	ErrGraphFrozen       = errors.New("graph is frozen")
	ErrNotFound          = errors.New("component not found")
	ErrNilComponent      = errors.New("nil component")
	ErrCycle             = errors.New("wiring contains a cycle")
)

// DefinitionError locates a rejected declaration.
type DefinitionError struct {
	Err       error
	Component string
	Port      string
	Role      string
	Party     string
	Msg       string
}

func (e *DefinitionError) Error() string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(e.Err.Error())
	if e.Component != "" {
		sb.WriteString(": component " + e.Component)
	}
	if e.Port != "" {
		sb.WriteString(": port " + e.Port)
	}
	if e.Role != "" {
		sb.WriteString(": role " + e.Role)
	}
	if e.Party != "" {
		sb.WriteString(": party " + e.Party)
	}
	if e.Msg != "" {
		sb.WriteString(": " + e.Msg)
	}
	return sb.String()
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// PartyString formats a party identifier for DefinitionError.Party.
func PartyString(party int64) string {
	return strconv.FormatInt(party, 10)
}
