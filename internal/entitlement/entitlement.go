// Package entitlement decides whether the configured principal may use the controller.
package entitlement

import (
	"strings"
	"time"
)

// Grant is the consumed entitlement signal.
type Grant struct {
	Principal string
	Allowed   bool
}

// Source yields the current grant.
type Source interface {
	Current() Grant
}

// Record is an entitlement as stored by the issuer.
type Record struct {
	Active    bool
	ExpiresAt time.Time // zero = never expires
}

// Allowed reports whether the record permits use at now.
// An inactive record is never allowed; an active one is allowed until its expiry.
func (r Record) Allowed(now time.Time) bool {
	if !r.Active {
		return false
	}
	if !r.ExpiresAt.IsZero() && !r.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Static is a Source built from configuration.
type Static struct {
	principal string
	record    Record
	now       func() time.Time
}

// NewStatic creates a static source. A blank principal is never allowed.
func NewStatic(principal string, record Record) *Static {
	return &Static{
		principal: strings.TrimSpace(principal),
		record:    record,
		now:       time.Now,
	}
}

// Current evaluates the record against the current time.
func (s *Static) Current() Grant {
	return Grant{
		Principal: s.principal,
		Allowed:   s.principal != "" && s.record.Allowed(s.now()),
	}
}
