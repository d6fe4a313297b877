package idl

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// ContentHash returns the hex SHA-256 of the definition's normalized
// projection. Two definitions equal in meaning hash identically; any
// change to an instruction, account flag, argument, type, or error code
// changes the hash.
func ContentHash(d *Definition) (string, error) {
	nd, err := d.normalized()
	if err != nil {
		return "", fmt.Errorf("normalize definition: %w", err)
	}
	b, err := json.Marshal(nd)
	if err != nil {
		return "", fmt.Errorf("serialize normalized definition: %w", err)
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum), nil
}
