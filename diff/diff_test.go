package diff

import (
	"encoding/json"
	"testing"

	"idlwatch/idl"
)

func def(t *testing.T, payload string) *idl.Definition {
	t.Helper()
	d, err := idl.Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse definition: %v", err)
	}
	return d
}

func detect(t *testing.T, oldDef, newDef *idl.Definition) []Change {
	t.Helper()
	changes, err := Detect(oldDef, newDef)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	return changes
}

func findChange(t *testing.T, changes []Change, ct ChangeType, item string) Change {
	t.Helper()
	for _, c := range changes {
		if c.Type == ct && c.Detail.ItemName == item {
			return c
		}
	}
	t.Fatalf("no %s change for %q in %+v", ct, item, changes)
	return Change{}
}

func TestDetect_InitialObservation(t *testing.T) {
	// WHAT: A nil old definition yields exactly one low-severity
	// synthetic record.
	newDef := def(t, `{"name": "amm", "version": "1.0.0",
		"instructions": [{"name": "swap", "accounts": [], "args": []}]}`)
	changes := detect(t, nil, newDef)
	if len(changes) != 1 {
		t.Fatalf("changes: got %d, want 1", len(changes))
	}
	if changes[0].Type != TypeInitialObservation {
		t.Errorf("type: got %s", changes[0].Type)
	}
	if changes[0].Severity != SeverityLow {
		t.Errorf("severity: got %s, want low", changes[0].Severity)
	}
}

func TestDetect_Unchanged(t *testing.T) {
	// WHAT: Semantically identical definitions produce zero changes
	// even when JSON key order differs.
	a := def(t, `{"name": "amm", "version": "1.0.0",
		"instructions": [{"name": "swap", "accounts": [{"name": "pool", "isMut": true, "isSigner": false}], "args": [{"name": "amount", "type": "u64"}]}],
		"types": [{"name": "Pool", "type": {"kind": "struct", "fields": []}}]}`)
	b := def(t, `{"version": "1.0.0", "name": "amm",
		"types": [{"type": {"fields": [], "kind": "struct"}, "name": "Pool"}],
		"instructions": [{"args": [{"type": "u64", "name": "amount"}], "accounts": [{"isSigner": false, "isMut": true, "name": "pool"}], "name": "swap"}]}`)
	if changes := detect(t, a, b); len(changes) != 0 {
		t.Fatalf("want no changes, got %+v", changes)
	}
}

func TestDetect_SwapRemovedSwapV2Added(t *testing.T) {
	// WHAT: The removal/addition pair from the end-to-end property:
	// removing "swap" is critical, adding "swap_v2" is low.
	oldDef := def(t, `{"name": "amm", "version": "1.0.0",
		"instructions": [{"name": "swap",
			"accounts": [{"name": "pool", "isMut": true, "isSigner": false}],
			"args": [{"name": "amount", "type": "u64"}]}]}`)
	newDef := def(t, `{"name": "amm", "version": "1.1.0",
		"instructions": [{"name": "swap_v2",
			"accounts": [{"name": "authority", "isMut": false, "isSigner": true}],
			"args": []}]}`)

	changes := detect(t, oldDef, newDef)
	if len(changes) != 2 {
		t.Fatalf("changes: got %d, want 2: %+v", len(changes), changes)
	}
	removed := findChange(t, changes, TypeInstructionRemoved, "swap")
	if removed.Severity != SeverityCritical {
		t.Errorf("removed severity: got %s, want critical", removed.Severity)
	}
	added := findChange(t, changes, TypeInstructionAdded, "swap_v2")
	if added.Severity != SeverityLow {
		t.Errorf("added severity: got %s, want low", added.Severity)
	}
}

func TestDetect_SensitiveInstructionAdded(t *testing.T) {
	// WHAT: Sensitive-named additions are medium; neutral names are low.
	oldDef := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "noop", "accounts": [], "args": []}]}`)
	newDef := def(t, `{"name": "amm", "version": "1", "instructions": [
		{"name": "noop", "accounts": [], "args": []},
		{"name": "withdrawFees", "accounts": [], "args": []},
		{"name": "refresh_price", "accounts": [], "args": []}]}`)
	changes := detect(t, oldDef, newDef)
	if got := findChange(t, changes, TypeInstructionAdded, "withdrawFees").Severity; got != SeverityMedium {
		t.Errorf("withdrawFees severity: got %s, want medium", got)
	}
	if got := findChange(t, changes, TypeInstructionAdded, "refresh_price").Severity; got != SeverityLow {
		t.Errorf("refresh_price severity: got %s, want low", got)
	}
}

func TestDetect_SignerChangeIsCriticalUnderMaxRule(t *testing.T) {
	// WHAT: A signer flag flip is critical even when lower-severity
	// sub-changes (argument count) happen in the same modification.
	// WHY: Severity is the maximum across matched rules, not the last.
	oldDef := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "swap",
		"accounts": [{"name": "authority", "isMut": false, "isSigner": false}],
		"args": [{"name": "amount", "type": "u64"}]}]}`)
	newDef := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "swap",
		"accounts": [{"name": "authority", "isMut": false, "isSigner": true}],
		"args": []}]}`)
	changes := detect(t, oldDef, newDef)
	mod := findChange(t, changes, TypeInstructionModified, "swap")
	if mod.Severity != SeverityCritical {
		t.Errorf("severity: got %s, want critical", mod.Severity)
	}
}

func TestDetect_MutabilityAndAccountCount(t *testing.T) {
	// WHAT: Mutability flips and account count changes are high.
	oldDef := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "swap",
		"accounts": [{"name": "pool", "isMut": false, "isSigner": false}], "args": []}]}`)

	mutFlip := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "swap",
		"accounts": [{"name": "pool", "isMut": true, "isSigner": false}], "args": []}]}`)
	if got := findChange(t, detect(t, oldDef, mutFlip), TypeInstructionModified, "swap").Severity; got != SeverityHigh {
		t.Errorf("mutability severity: got %s, want high", got)
	}

	extraAcc := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "swap",
		"accounts": [{"name": "pool", "isMut": false, "isSigner": false},
			{"name": "fee_vault", "isMut": true, "isSigner": false}], "args": []}]}`)
	if got := findChange(t, detect(t, oldDef, extraAcc), TypeInstructionModified, "swap").Severity; got != SeverityHigh {
		t.Errorf("account count severity: got %s, want high", got)
	}
}

func TestDetect_ArgumentChanges(t *testing.T) {
	// WHAT: Argument count and type changes are medium.
	oldDef := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "swap",
		"accounts": [], "args": [{"name": "amount", "type": "u64"}]}]}`)

	argCount := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "swap",
		"accounts": [], "args": [{"name": "amount", "type": "u64"}, {"name": "slippage", "type": "u16"}]}]}`)
	if got := findChange(t, detect(t, oldDef, argCount), TypeInstructionModified, "swap").Severity; got != SeverityMedium {
		t.Errorf("arg count severity: got %s, want medium", got)
	}

	argType := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "swap",
		"accounts": [], "args": [{"name": "amount", "type": "u128"}]}]}`)
	if got := findChange(t, detect(t, oldDef, argType), TypeInstructionModified, "swap").Severity; got != SeverityMedium {
		t.Errorf("arg type severity: got %s, want medium", got)
	}
}

func TestDetect_TypesAndAccounts(t *testing.T) {
	// WHAT: Category rules for named types/accounts: removal high,
	// modification medium, addition low.
	oldDef := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "noop", "accounts": [], "args": []}],
		"accounts": [{"name": "Pool", "type": {"kind": "struct", "fields": [{"name": "fee", "type": "u16"}]}}],
		"types": [{"name": "Curve", "type": {"kind": "enum", "variants": [{"name": "Flat"}]}}]}`)
	newDef := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "noop", "accounts": [], "args": []}],
		"accounts": [{"name": "Vault", "type": {"kind": "struct", "fields": []}}],
		"types": [{"name": "Curve", "type": {"kind": "enum", "variants": [{"name": "Flat"}, {"name": "Stable"}]}}]}`)

	changes := detect(t, oldDef, newDef)
	if got := findChange(t, changes, TypeAccountRemoved, "Pool").Severity; got != SeverityHigh {
		t.Errorf("account removed: got %s, want high", got)
	}
	if got := findChange(t, changes, TypeAccountAdded, "Vault").Severity; got != SeverityLow {
		t.Errorf("account added: got %s, want low", got)
	}
	if got := findChange(t, changes, TypeTypeModified, "Curve").Severity; got != SeverityMedium {
		t.Errorf("type modified: got %s, want medium", got)
	}
}

func TestDetect_Errors(t *testing.T) {
	// WHAT: Error category rules: removal medium, add/modify low.
	oldDef := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "noop", "accounts": [], "args": []}],
		"errors": [{"code": 6000, "name": "Slippage", "msg": "slippage exceeded"},
			{"code": 6001, "name": "Paused", "msg": "pool is paused"}]}`)
	newDef := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "noop", "accounts": [], "args": []}],
		"errors": [{"code": 6001, "name": "Paused", "msg": "the pool is paused"},
			{"code": 6002, "name": "Overflow", "msg": "math overflow"}]}`)

	changes := detect(t, oldDef, newDef)
	if got := findChange(t, changes, TypeErrorRemoved, "Slippage").Severity; got != SeverityMedium {
		t.Errorf("error removed: got %s, want medium", got)
	}
	if got := findChange(t, changes, TypeErrorAdded, "Overflow").Severity; got != SeverityLow {
		t.Errorf("error added: got %s, want low", got)
	}
	if got := findChange(t, changes, TypeErrorModified, "Paused").Severity; got != SeverityLow {
		t.Errorf("error modified: got %s, want low", got)
	}
}

func TestDetect_DetailPayload(t *testing.T) {
	// WHAT: The structured detail carries old/new values and survives a
	// JSON round trip (it is persisted as detail_json).
	oldDef := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "swap",
		"accounts": [], "args": [{"name": "amount", "type": "u64"}]}]}`)
	newDef := def(t, `{"name": "amm", "version": "1", "instructions": [{"name": "swap",
		"accounts": [], "args": [{"name": "amount", "type": "u128"}]}]}`)
	mod := findChange(t, detect(t, oldDef, newDef), TypeInstructionModified, "swap")
	if len(mod.Detail.OldValue) == 0 || len(mod.Detail.NewValue) == 0 {
		t.Fatal("detail should carry old and new values")
	}
	b, err := json.Marshal(mod.Detail)
	if err != nil {
		t.Fatalf("marshal detail: %v", err)
	}
	var back Detail
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if back.ItemName != "swap" || back.ChangeType != string(TypeInstructionModified) {
		t.Errorf("round trip: got %+v", back)
	}
}
