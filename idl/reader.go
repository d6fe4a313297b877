package idl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// idlSeed is the fixed seed Anchor uses to derive a program's IDL
// account from its base program-derived address.
const idlSeed = "anchor:idl"

// AccountLookup reads the raw bytes of one account. A nil slice with a
// nil error means the account does not exist. The production lookup is
// RPCLookup; tests inject fakes.
type AccountLookup func(ctx context.Context, address solana.PublicKey) ([]byte, error)

// RPCLookup wraps a Solana JSON-RPC client as an AccountLookup.
func RPCLookup(client *rpc.Client) AccountLookup {
	return func(ctx context.Context, address solana.PublicKey) ([]byte, error) {
		res, err := client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Commitment: rpc.CommitmentConfirmed,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get account info: %w", err)
		}
		if res == nil || res.Value == nil {
			return nil, nil
		}
		return res.Value.Data.GetBinary(), nil
	}
}

// IDLAddress derives the deterministic IDL account address for a
// program: the program's empty-seed PDA extended with the fixed seed.
func IDLAddress(program solana.PublicKey) (solana.PublicKey, error) {
	base, _, err := solana.FindProgramAddress([][]byte{}, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive base address: %w", err)
	}
	addr, err := solana.CreateWithSeed(base, idlSeed, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive idl address: %w", err)
	}
	return addr, nil
}

// ReaderConfig configures fetch retry behavior.
type ReaderConfig struct {
	// MaxAttempts is the total attempt ceiling per fetch. Default: 3.
	MaxAttempts int
	// BaseBackoff is the wait after the first failure, doubled per
	// attempt. Default: 500ms.
	BaseBackoff time.Duration
}

func (c *ReaderConfig) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
}

// Reader fetches and decodes the published definition for a program.
type Reader struct {
	lookup AccountLookup
	config ReaderConfig
	logger *slog.Logger
}

// NewReader creates a Reader over the given account lookup.
func NewReader(lookup AccountLookup, cfg ReaderConfig, logger *slog.Logger) *Reader {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{lookup: lookup, config: cfg, logger: logger}
}

// Fetch returns the program's current definition, or (nil, nil) when no
// definition account exists. Transient lookup and parse failures are
// retried with exponential backoff; once the attempt ceiling is
// exhausted the last cause surfaces as a TransientError. Absence is
// never reported as an error and errors are never reported as absence.
func (r *Reader) Fetch(ctx context.Context, programAddress string) (*Definition, error) {
	program, err := solana.PublicKeyFromBase58(programAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid program address %q: %w", programAddress, err)
	}
	addr, err := IDLAddress(program)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		def, found, err := r.fetchOnce(ctx, addr)
		if err == nil {
			if !found {
				return nil, nil
			}
			return def, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < r.config.MaxAttempts {
			wait := r.config.BaseBackoff * (1 << uint(attempt-1))
			r.logger.Warn("idl: fetch failed, retrying",
				"program", programAddress,
				"attempt", attempt,
				"max_attempts", r.config.MaxAttempts,
				"backoff_ms", wait.Milliseconds(),
				"error", err)
			select {
			case <-ctx.Done():
				return nil, &TransientError{Address: programAddress, Attempts: attempt, Err: lastErr}
			case <-time.After(wait):
			}
		}
	}
	return nil, &TransientError{Address: programAddress, Attempts: r.config.MaxAttempts, Err: lastErr}
}

func (r *Reader) fetchOnce(ctx context.Context, addr solana.PublicKey) (*Definition, bool, error) {
	data, err := r.lookup(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}
	def, err := DecodeAccount(data)
	if err != nil {
		return nil, false, err
	}
	return def, true, nil
}
