// Package keymap resolves symbolic placeholders used throughout benchmarks
// and ground truth into concrete base58 public keys.
package keymap

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"reev-core/internal/reeverr"
)

// Placeholder is a symbolic name appearing in benchmarks and ground truth,
// e.g. "USER_WALLET_PUBKEY" or "RECIPIENT_USDC_ATA". Every placeholder
// referenced by an active execution must resolve to a public key before
// execution.
type Placeholder string

// Well-known mandatory placeholders. Their absence from a KeyMap is fatal
// when the prompt semantically requires them (§4.1).
const (
	UserWallet Placeholder = "USER_WALLET_PUBKEY"
)

// KeyMap maps a Placeholder to its resolved public key. It is shared
// read-only within a step and carried forward unchanged on context refresh;
// no step mutates another step's view (§9).
type KeyMap struct {
	entries map[Placeholder]solana.PublicKey
}

// New returns an empty KeyMap.
func New() *KeyMap {
	return &KeyMap{entries: make(map[Placeholder]solana.PublicKey)}
}

// Set binds placeholder to key, overwriting any prior binding.
func (m *KeyMap) Set(placeholder Placeholder, key solana.PublicKey) {
	m.entries[placeholder] = key
}

// SetBase58 parses s as a base58 public key and binds it to placeholder.
func (m *KeyMap) SetBase58(placeholder Placeholder, s string) error {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return reeverr.Wrap(reeverr.KindValidation, reeverr.TagInvalidPubkey,
			fmt.Sprintf("placeholder %s: invalid pubkey %q", placeholder, s), err)
	}
	m.Set(placeholder, key)
	return nil
}

// Resolve returns the public key bound to placeholder. It returns a
// Configuration/missing_placeholder error when no binding exists, per the
// invariant in §3 that every referenced placeholder of an active execution
// must have an entry.
func (m *KeyMap) Resolve(placeholder Placeholder) (solana.PublicKey, error) {
	key, ok := m.entries[placeholder]
	if !ok {
		return solana.PublicKey{}, reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagMissingPlaceholder,
			"placeholder %q has no resolved key", placeholder)
	}
	return key, nil
}

// Has reports whether placeholder is bound.
func (m *KeyMap) Has(placeholder Placeholder) bool {
	_, ok := m.entries[placeholder]
	return ok
}

// Placeholders returns every bound placeholder, order unspecified.
func (m *KeyMap) Placeholders() []Placeholder {
	out := make([]Placeholder, 0, len(m.entries))
	for p := range m.entries {
		out = append(out, p)
	}
	return out
}

// Clone returns a deep copy suitable for handing to a new step without
// risking cross-step mutation.
func (m *KeyMap) Clone() *KeyMap {
	c := New()
	for p, k := range m.entries {
		c.entries[p] = k
	}
	return c
}

// Validate checks that no entry is bound to the zero pubkey. Set accepts
// any key, the zero key included, so a KeyMap built through Set can fail
// this check; SetBase58 rejects strings that do not decode to a pubkey
// (§4.1 validate operation).
func (m *KeyMap) Validate() error {
	var zero solana.PublicKey
	for p, k := range m.entries {
		if k == zero {
			return reeverr.Errorf(reeverr.KindContext, reeverr.TagAccountParseFailure,
				"placeholder %q resolved to the zero pubkey", p)
		}
	}
	return nil
}
