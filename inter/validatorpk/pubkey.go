// Package validatorpk provides abstractions for handling validator public keys.
// It defines a generic PubKey structure that supports multiple cryptographic
// schemes and provides utilities for serialization, deserialization, and hex
// string conversion. Validators sign block votes with secp256k1 recoverable
// signatures, while notaries and bundle proposers use Dilithium; carrying the
// scheme tag next to the raw bytes lets the registry hold both without the
// consensus engine needing to know curve details everywhere.

package validatorpk

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// FakePassword is a dummy keystore password used by test presets where
	// security is not a concern.
	FakePassword = "fakepassword"
)

// PubKey represents a validator's public key.
// It decouples the key type from the raw bytes, allowing secp256k1 and
// Dilithium keys to travel through the same registry and wire structures.
type PubKey struct {
	// Type identifies the cryptographic scheme (see Types).
	Type uint8
	// Raw contains the actual public key bytes.
	Raw []byte
}

// Types defines the supported public key type constants.
var Types = struct {
	Secp256k1 uint8
	Dilithium uint8
}{
	// Secp256k1 is the identifier for the standard Ethereum elliptic curve.
	Secp256k1: 0xc0,
	// Dilithium is the identifier for the Dilithium mode3 lattice scheme.
	Dilithium: 0xd3,
}

// Empty checks if the public key is uninitialized or zeroed out.
func (pk PubKey) Empty() bool {
	return len(pk.Raw) == 0 && pk.Type == 0
}

// Validate checks that the raw bytes have the exact length the declared
// scheme requires.
func (pk PubKey) Validate() error {
	switch pk.Type {
	case Types.Secp256k1:
		if len(pk.Raw) != 65 {
			return fmt.Errorf("secp256k1 pubkey must be 65 bytes, got %d", len(pk.Raw))
		}
		if _, err := crypto.UnmarshalPubkey(pk.Raw); err != nil {
			return err
		}
		return nil
	case Types.Dilithium:
		if len(pk.Raw) != mode3.PublicKeySize {
			return fmt.Errorf("dilithium pubkey must be %d bytes, got %d", mode3.PublicKeySize, len(pk.Raw))
		}
		return nil
	default:
		return fmt.Errorf("unknown pubkey type 0x%x", pk.Type)
	}
}

// String returns the hexadecimal string representation of the public key,
// prefixed with "0x". It includes the Type byte followed by the Raw bytes.
func (pk PubKey) String() string {
	return "0x" + common.Bytes2Hex(pk.Bytes())
}

// Bytes returns the flat byte slice representation of the public key.
// The format is [Type byte] + [Raw bytes...].
func (pk PubKey) Bytes() []byte {
	return append([]byte{pk.Type}, pk.Raw...)
}

// Copy creates a deep copy of the PubKey. The Raw field is a slice, so a
// plain assignment would share the underlying memory.
func (pk PubKey) Copy() PubKey {
	return PubKey{
		Type: pk.Type,
		Raw:  common.CopyBytes(pk.Raw),
	}
}

// FromString parses a hex string (with or without "0x" prefix) into a PubKey.
func FromString(str string) (PubKey, error) {
	return FromBytes(common.FromHex(str))
}

// FromBytes reconstructs a PubKey from a flat byte slice.
// It expects the first byte to be the Type and the rest to be the Raw key.
func FromBytes(b []byte) (PubKey, error) {
	if len(b) == 0 {
		return PubKey{}, errors.New("empty pubkey")
	}
	return PubKey{b[0], b[1:]}, nil
}

// MarshalText implements the encoding.TextMarshaler interface, so a PubKey
// marshals into a JSON hex string.
func (pk *PubKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (pk *PubKey) UnmarshalText(input []byte) error {
	res, err := FromString(string(input))
	if err != nil {
		return err
	}
	*pk = res
	return nil
}
