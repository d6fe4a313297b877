// Package idgen produces the identifiers used across the service.
//
// Every persisted row carries a UUIDv7 with a short type prefix, so IDs
// are time-sortable and their table is readable from the ID alone.
package idgen

import (
	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Type-scoped generators for the service's persisted entities.
var (
	NewRunID        = Prefixed("run_", UUIDv7())
	NewSnapshotID   = Prefixed("snap_", UUIDv7())
	NewChangeID     = Prefixed("chg_", UUIDv7())
	NewTargetID     = Prefixed("tgt_", UUIDv7())
	NewSubscriberID = Prefixed("sub_", UUIDv7())
)
