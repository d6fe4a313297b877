package idl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// The normalized projection keeps only the fields that carry meaning
// for change detection. Docs, metadata, and field order inside raw type
// expressions are all incidental and must not affect the content hash.

type normDefinition struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Instructions []normInstruction `json:"instructions"`
	Accounts     []normNamed       `json:"accounts,omitempty"`
	Types        []normNamed       `json:"types,omitempty"`
	Errors       []normError       `json:"errors,omitempty"`
}

type normInstruction struct {
	Name     string        `json:"name"`
	Accounts []normAccount `json:"accounts"`
	Args     []normArg     `json:"args"`
}

type normAccount struct {
	Name    string `json:"name"`
	Mutable bool   `json:"mutable"`
	Signer  bool   `json:"signer"`
}

type normArg struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type normNamed struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type normError struct {
	Code int64  `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

func (d *Definition) normalized() (*normDefinition, error) {
	nd := &normDefinition{
		Name:    d.Name,
		Version: d.Version,
	}
	for _, ins := range d.Instructions {
		ni, err := normalizeInstruction(ins)
		if err != nil {
			return nil, err
		}
		nd.Instructions = append(nd.Instructions, ni)
	}
	for _, a := range d.Accounts {
		nn, err := normalizeNamed(a)
		if err != nil {
			return nil, err
		}
		nd.Accounts = append(nd.Accounts, nn)
	}
	for _, t := range d.Types {
		nn, err := normalizeNamed(t)
		if err != nil {
			return nil, err
		}
		nd.Types = append(nd.Types, nn)
	}
	for _, e := range d.Errors {
		nd.Errors = append(nd.Errors, normError{Code: e.Code, Name: e.Name, Msg: e.Msg})
	}
	return nd, nil
}

func normalizeInstruction(ins Instruction) (normInstruction, error) {
	ni := normInstruction{
		Name:     ins.Name,
		Accounts: make([]normAccount, 0, len(ins.Accounts)),
		Args:     make([]normArg, 0, len(ins.Args)),
	}
	for _, acc := range ins.Accounts {
		ni.Accounts = append(ni.Accounts, normAccount{
			Name:    acc.Name,
			Mutable: acc.IsMut,
			Signer:  acc.IsSigner,
		})
	}
	for _, arg := range ins.Args {
		t, err := CanonicalJSON(arg.Type)
		if err != nil {
			return normInstruction{}, fmt.Errorf("instruction %q arg %q: %w", ins.Name, arg.Name, err)
		}
		ni.Args = append(ni.Args, normArg{Name: arg.Name, Type: t})
	}
	return ni, nil
}

func normalizeNamed(n NamedType) (normNamed, error) {
	t, err := CanonicalJSON(n.Type)
	if err != nil {
		return normNamed{}, fmt.Errorf("type %q: %w", n.Name, err)
	}
	return normNamed{Name: n.Name, Type: t}, nil
}

// CanonicalInstruction returns the stable-key JSON of an instruction's
// normalized projection. The diff engine compares these by value.
func CanonicalInstruction(ins Instruction) (json.RawMessage, error) {
	ni, err := normalizeInstruction(ins)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ni)
}

// CanonicalNamed returns the stable-key JSON of an account or custom
// type's normalized projection.
func CanonicalNamed(n NamedType) (json.RawMessage, error) {
	nn, err := normalizeNamed(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nn)
}

// CanonicalError returns the stable-key JSON of an error code's
// normalized projection.
func CanonicalError(e ErrorCode) (json.RawMessage, error) {
	return json.Marshal(normError{Code: e.Code, Name: e.Name, Msg: e.Msg})
}

// CanonicalJSON re-encodes arbitrary JSON with object keys sorted so
// that two payloads equal in meaning serialize identically. Numbers are
// passed through as written; nil input canonicalizes to JSON null.
func CanonicalJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(t.String())
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonicalize: unexpected value %T", v)
	}
	return nil
}
