// Package idl reads and models on-chain Anchor interface definitions.
//
// A Definition describes a program's callable instructions, account
// layouts, custom types, and error codes. Definitions are immutable
// values: the Reader produces them, the snapshot store persists them,
// and the diff engine compares them. Content identity is the SHA-256
// of a canonical projection (see ContentHash), so two definitions that
// differ only in incidental JSON key order hash identically.
package idl

import (
	"encoding/json"
	"fmt"
)

// Definition is a decoded interface definition.
type Definition struct {
	Name         string        `json:"name"`
	Version      string        `json:"version"`
	Instructions []Instruction `json:"instructions"`
	Accounts     []NamedType   `json:"accounts,omitempty"`
	Types        []NamedType   `json:"types,omitempty"`
	Errors       []ErrorCode   `json:"errors,omitempty"`

	// Raw is the JSON payload the definition was decoded from, kept
	// verbatim for snapshot storage. Empty when the Definition was
	// constructed in code rather than parsed.
	Raw json.RawMessage `json:"-"`
}

// Instruction is one callable operation.
type Instruction struct {
	Name     string               `json:"name"`
	Accounts []InstructionAccount `json:"accounts"`
	Args     []Arg                `json:"args"`
}

// InstructionAccount is an account an instruction touches, with its
// mutability and signer requirements.
type InstructionAccount struct {
	Name     string `json:"name"`
	IsMut    bool   `json:"isMut"`
	IsSigner bool   `json:"isSigner"`
}

// Arg is a typed instruction argument. Type is kept as raw JSON because
// Anchor types are either strings ("u64") or nested objects.
type Arg struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

// NamedType is a named account layout or custom type.
type NamedType struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

// ErrorCode is a program error definition.
type ErrorCode struct {
	Code int64  `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg,omitempty"`
}

// Validate checks the definition's shape: a non-empty name and an
// instructions list where every entry carries a name plus accounts and
// args arrays (empty arrays are fine, missing ones are not).
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("definition has no name")
	}
	if d.Instructions == nil {
		return fmt.Errorf("definition has no instructions array")
	}
	for i, ins := range d.Instructions {
		if ins.Name == "" {
			return fmt.Errorf("instruction %d has no name", i)
		}
		if ins.Accounts == nil {
			return fmt.Errorf("instruction %q has no accounts array", ins.Name)
		}
		if ins.Args == nil {
			return fmt.Errorf("instruction %q has no args array", ins.Name)
		}
	}
	return nil
}

// Parse decodes a JSON payload into a validated Definition.
func Parse(payload []byte) (*Definition, error) {
	var d Definition
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Err: err}
	}
	if err := d.Validate(); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	d.Raw = append(json.RawMessage(nil), payload...)
	return &d, nil
}

// JSON returns the definition's payload for storage: the original raw
// bytes when present, otherwise a fresh marshal.
func (d *Definition) JSON() (json.RawMessage, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}
	return b, nil
}
