package diff

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"idlwatch/idl"
)

// ChangeType identifies the category and direction of one change.
type ChangeType string

const (
	TypeInitialObservation ChangeType = "initial_observation"

	TypeInstructionAdded    ChangeType = "instruction_added"
	TypeInstructionRemoved  ChangeType = "instruction_removed"
	TypeInstructionModified ChangeType = "instruction_modified"

	TypeAccountAdded    ChangeType = "account_added"
	TypeAccountRemoved  ChangeType = "account_removed"
	TypeAccountModified ChangeType = "account_modified"

	TypeTypeAdded    ChangeType = "type_added"
	TypeTypeRemoved  ChangeType = "type_removed"
	TypeTypeModified ChangeType = "type_modified"

	TypeErrorAdded    ChangeType = "error_added"
	TypeErrorRemoved  ChangeType = "error_removed"
	TypeErrorModified ChangeType = "error_modified"
)

// Change is one detected structural difference.
type Change struct {
	Type     ChangeType
	Severity Severity
	Summary  string
	Detail   Detail
}

// Detail is the structured payload persisted alongside a change record.
type Detail struct {
	ChangeType  string          `json:"change_type"`
	ItemName    string          `json:"item_name"`
	OldValue    json.RawMessage `json:"old_value,omitempty"`
	NewValue    json.RawMessage `json:"new_value,omitempty"`
	Description string          `json:"description"`
}

// Detect compares two definitions and returns the classified changes.
// A nil old definition yields one low-severity initial-observation
// record. Otherwise instructions, accounts, types (keyed by name) and
// errors (keyed by code) are diffed independently, and each change's
// severity is the maximum over every matching rule.
func Detect(oldDef, newDef *idl.Definition) ([]Change, error) {
	if newDef == nil {
		return nil, fmt.Errorf("diff: new definition is nil")
	}
	if oldDef == nil {
		return []Change{initialObservation(newDef)}, nil
	}

	var changes []Change

	ins, err := diffInstructions(oldDef.Instructions, newDef.Instructions)
	if err != nil {
		return nil, err
	}
	changes = append(changes, ins...)

	accs, err := diffNamed(oldDef.Accounts, newDef.Accounts, "account",
		TypeAccountAdded, TypeAccountRemoved, TypeAccountModified)
	if err != nil {
		return nil, err
	}
	changes = append(changes, accs...)

	types, err := diffNamed(oldDef.Types, newDef.Types, "type",
		TypeTypeAdded, TypeTypeRemoved, TypeTypeModified)
	if err != nil {
		return nil, err
	}
	changes = append(changes, types...)

	errs, err := diffErrors(oldDef.Errors, newDef.Errors)
	if err != nil {
		return nil, err
	}
	changes = append(changes, errs...)

	return changes, nil
}

func initialObservation(def *idl.Definition) Change {
	desc := fmt.Sprintf("first observed definition: %d instructions, %d accounts, %d types, %d errors",
		len(def.Instructions), len(def.Accounts), len(def.Types), len(def.Errors))
	return Change{
		Type:     TypeInitialObservation,
		Severity: SeverityLow,
		Summary:  fmt.Sprintf("Initial observation of %q v%s", def.Name, def.Version),
		Detail: Detail{
			ChangeType:  string(TypeInitialObservation),
			ItemName:    def.Name,
			Description: desc,
		},
	}
}

func diffInstructions(oldIns, newIns []idl.Instruction) ([]Change, error) {
	oldByName := make(map[string]idl.Instruction, len(oldIns))
	for _, i := range oldIns {
		oldByName[i.Name] = i
	}
	newByName := make(map[string]idl.Instruction, len(newIns))
	for _, i := range newIns {
		newByName[i.Name] = i
	}

	var changes []Change

	// Removed: old definition order.
	for _, i := range oldIns {
		if _, ok := newByName[i.Name]; ok {
			continue
		}
		old, err := idl.CanonicalInstruction(i)
		if err != nil {
			return nil, err
		}
		changes = append(changes, Change{
			Type:     TypeInstructionRemoved,
			Severity: SeverityCritical,
			Summary:  fmt.Sprintf("Instruction %q was removed", i.Name),
			Detail: Detail{
				ChangeType:  string(TypeInstructionRemoved),
				ItemName:    i.Name,
				OldValue:    old,
				Description: "existing callers of this instruction will fail",
			},
		})
	}

	// Added and modified: new definition order.
	for _, i := range newIns {
		prev, ok := oldByName[i.Name]
		if !ok {
			nv, err := idl.CanonicalInstruction(i)
			if err != nil {
				return nil, err
			}
			sev := instructionAddedSeverity(i.Name)
			desc := "new instruction"
			if sev > SeverityLow {
				desc = "new instruction with a sensitive name"
			}
			changes = append(changes, Change{
				Type:     TypeInstructionAdded,
				Severity: sev,
				Summary:  fmt.Sprintf("Instruction %q was added", i.Name),
				Detail: Detail{
					ChangeType:  string(TypeInstructionAdded),
					ItemName:    i.Name,
					NewValue:    nv,
					Description: desc,
				},
			})
			continue
		}

		ov, err := idl.CanonicalInstruction(prev)
		if err != nil {
			return nil, err
		}
		nv, err := idl.CanonicalInstruction(i)
		if err != nil {
			return nil, err
		}
		same, err := jsonEqual(ov, nv)
		if err != nil {
			return nil, err
		}
		if same {
			continue
		}
		sev, reasons := classifyInstructionModification(prev, i)
		changes = append(changes, Change{
			Type:     TypeInstructionModified,
			Severity: sev,
			Summary:  fmt.Sprintf("Instruction %q was modified: %s", i.Name, strings.Join(reasons, "; ")),
			Detail: Detail{
				ChangeType:  string(TypeInstructionModified),
				ItemName:    i.Name,
				OldValue:    ov,
				NewValue:    nv,
				Description: strings.Join(reasons, "; "),
			},
		})
	}

	return changes, nil
}

// classifyInstructionModification inspects what changed inside an
// instruction and returns the maximum severity across every matched
// rule: signer requirement change is critical, mutability or account
// set change is high, anything else (argument count, argument types)
// floors at medium.
func classifyInstructionModification(oldIns, newIns idl.Instruction) (Severity, []string) {
	sev := SeverityMedium
	var reasons []string

	oldAccs := make(map[string]idl.InstructionAccount, len(oldIns.Accounts))
	for _, a := range oldIns.Accounts {
		oldAccs[a.Name] = a
	}
	newAccs := make(map[string]idl.InstructionAccount, len(newIns.Accounts))
	for _, a := range newIns.Accounts {
		newAccs[a.Name] = a
	}

	for _, a := range newIns.Accounts {
		prev, ok := oldAccs[a.Name]
		if !ok {
			continue
		}
		if prev.IsSigner != a.IsSigner {
			sev = maxSeverity(sev, SeverityCritical)
			reasons = append(reasons, fmt.Sprintf("account %q signer requirement changed (%v -> %v)",
				a.Name, prev.IsSigner, a.IsSigner))
		}
		if prev.IsMut != a.IsMut {
			sev = maxSeverity(sev, SeverityHigh)
			reasons = append(reasons, fmt.Sprintf("account %q mutability changed (%v -> %v)",
				a.Name, prev.IsMut, a.IsMut))
		}
	}

	if len(oldIns.Accounts) != len(newIns.Accounts) {
		sev = maxSeverity(sev, SeverityHigh)
		reasons = append(reasons, fmt.Sprintf("account count changed (%d -> %d)",
			len(oldIns.Accounts), len(newIns.Accounts)))
	} else if accountNamesDiffer(oldAccs, newAccs) {
		// Same count but a different account set is still a layout change.
		sev = maxSeverity(sev, SeverityHigh)
		reasons = append(reasons, "account set changed")
	}

	if len(oldIns.Args) != len(newIns.Args) {
		reasons = append(reasons, fmt.Sprintf("argument count changed (%d -> %d)",
			len(oldIns.Args), len(newIns.Args)))
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "argument names or types changed")
	}
	return sev, reasons
}

func accountNamesDiffer(oldAccs, newAccs map[string]idl.InstructionAccount) bool {
	for name := range newAccs {
		if _, ok := oldAccs[name]; !ok {
			return true
		}
	}
	for name := range oldAccs {
		if _, ok := newAccs[name]; !ok {
			return true
		}
	}
	return false
}

// diffNamed diffs accounts or custom types, both keyed by name.
// Removal is high, modification medium, addition low.
func diffNamed(oldItems, newItems []idl.NamedType, label string,
	added, removed, modified ChangeType) ([]Change, error) {

	oldByName := make(map[string]idl.NamedType, len(oldItems))
	for _, n := range oldItems {
		oldByName[n.Name] = n
	}
	newByName := make(map[string]idl.NamedType, len(newItems))
	for _, n := range newItems {
		newByName[n.Name] = n
	}

	var changes []Change

	for _, n := range oldItems {
		if _, ok := newByName[n.Name]; ok {
			continue
		}
		ov, err := idl.CanonicalNamed(n)
		if err != nil {
			return nil, err
		}
		changes = append(changes, Change{
			Type:     removed,
			Severity: SeverityHigh,
			Summary:  fmt.Sprintf("%s %q was removed", titled(label), n.Name),
			Detail: Detail{
				ChangeType:  string(removed),
				ItemName:    n.Name,
				OldValue:    ov,
				Description: label + " no longer present in the definition",
			},
		})
	}

	for _, n := range newItems {
		prev, ok := oldByName[n.Name]
		if !ok {
			nv, err := idl.CanonicalNamed(n)
			if err != nil {
				return nil, err
			}
			changes = append(changes, Change{
				Type:     added,
				Severity: SeverityLow,
				Summary:  fmt.Sprintf("%s %q was added", titled(label), n.Name),
				Detail: Detail{
					ChangeType:  string(added),
					ItemName:    n.Name,
					NewValue:    nv,
					Description: "new " + label,
				},
			})
			continue
		}

		ov, err := idl.CanonicalNamed(prev)
		if err != nil {
			return nil, err
		}
		nv, err := idl.CanonicalNamed(n)
		if err != nil {
			return nil, err
		}
		same, err := jsonEqual(ov, nv)
		if err != nil {
			return nil, err
		}
		if same {
			continue
		}
		changes = append(changes, Change{
			Type:     modified,
			Severity: SeverityMedium,
			Summary:  fmt.Sprintf("%s %q was modified", titled(label), n.Name),
			Detail: Detail{
				ChangeType:  string(modified),
				ItemName:    n.Name,
				OldValue:    ov,
				NewValue:    nv,
				Description: label + " layout changed",
			},
		})
	}

	return changes, nil
}

// diffErrors diffs error codes, keyed by numeric code. Removal is
// medium, addition and modification low.
func diffErrors(oldErrs, newErrs []idl.ErrorCode) ([]Change, error) {
	oldByCode := make(map[int64]idl.ErrorCode, len(oldErrs))
	for _, e := range oldErrs {
		oldByCode[e.Code] = e
	}
	newByCode := make(map[int64]idl.ErrorCode, len(newErrs))
	for _, e := range newErrs {
		newByCode[e.Code] = e
	}

	var changes []Change

	for _, e := range oldErrs {
		if _, ok := newByCode[e.Code]; ok {
			continue
		}
		ov, err := idl.CanonicalError(e)
		if err != nil {
			return nil, err
		}
		changes = append(changes, Change{
			Type:     TypeErrorRemoved,
			Severity: SeverityMedium,
			Summary:  fmt.Sprintf("Error %d (%s) was removed", e.Code, e.Name),
			Detail: Detail{
				ChangeType:  string(TypeErrorRemoved),
				ItemName:    errorKey(e),
				OldValue:    ov,
				Description: "error code no longer defined",
			},
		})
	}

	for _, e := range newErrs {
		prev, ok := oldByCode[e.Code]
		if !ok {
			nv, err := idl.CanonicalError(e)
			if err != nil {
				return nil, err
			}
			changes = append(changes, Change{
				Type:     TypeErrorAdded,
				Severity: SeverityLow,
				Summary:  fmt.Sprintf("Error %d (%s) was added", e.Code, e.Name),
				Detail: Detail{
					ChangeType:  string(TypeErrorAdded),
					ItemName:    errorKey(e),
					NewValue:    nv,
					Description: "new error code",
				},
			})
			continue
		}
		if prev.Name == e.Name && prev.Msg == e.Msg {
			continue
		}
		ov, err := idl.CanonicalError(prev)
		if err != nil {
			return nil, err
		}
		nv, err := idl.CanonicalError(e)
		if err != nil {
			return nil, err
		}
		changes = append(changes, Change{
			Type:     TypeErrorModified,
			Severity: SeverityLow,
			Summary:  fmt.Sprintf("Error %d (%s) was modified", e.Code, e.Name),
			Detail: Detail{
				ChangeType:  string(TypeErrorModified),
				ItemName:    errorKey(e),
				OldValue:    ov,
				NewValue:    nv,
				Description: "error name or message changed",
			},
		})
	}

	return changes, nil
}

func errorKey(e idl.ErrorCode) string {
	if e.Name != "" {
		return e.Name
	}
	return strconv.FormatInt(e.Code, 10)
}

func titled(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
