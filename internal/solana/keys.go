package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// pdaMarker is appended to program-derived-address seeds per the Solana
// runtime convention.
const pdaMarker = "ProgramDerivedAddress"

// DecodePubkey decodes a base58 public key and validates its length.
func DecodePubkey(address string) ([]byte, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decode pubkey %q: %w", address, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("pubkey %q: expected %d bytes, got %d", address, ed25519.PublicKeySize, len(raw))
	}
	return raw, nil
}

// isOnCurve reports whether b decodes to a valid edwards25519 point.
// Program-derived addresses must NOT be on the curve, so no private key
// can ever exist for them.
func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// FindProgramAddress derives the program address for the given seeds,
// searching bump seeds from 255 downward until an off-curve address is
// found.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := DecodePubkey(programID)
	if err != nil {
		return "", 0, err
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{uint8(bump)})
		h.Write(program)
		h.Write([]byte(pdaMarker))
		candidate := h.Sum(nil)

		if !isOnCurve(candidate) {
			return base58.Encode(candidate), uint8(bump), nil
		}
	}

	return "", 0, fmt.Errorf("no viable program address for seeds")
}

// DeriveAssociatedTokenAccount derives the deterministic token-holding
// account for (owner, mint) under the associated token program.
func DeriveAssociatedTokenAccount(owner, mint string) (string, error) {
	ownerKey, err := DecodePubkey(owner)
	if err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	mintKey, err := DecodePubkey(mint)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	tokenProgram, err := DecodePubkey(TokenProgramID)
	if err != nil {
		return "", err
	}

	address, _, err := FindProgramAddress(
		[][]byte{ownerKey, tokenProgram, mintKey},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return "", fmt.Errorf("derive associated token account: %w", err)
	}
	return address, nil
}

// Keypair is an ed25519 signing keypair with its base58 address.
type Keypair struct {
	PrivateKey ed25519.PrivateKey
	Address    string
}

// ParseKeypair parses a base58-encoded 64-byte ed25519 secret key
// (seed || public key), the standard Solana wallet export format.
func ParseKeypair(secret string) (*Keypair, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}

	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{
		PrivateKey: priv,
		Address:    base58.Encode(pub),
	}, nil
}

// Sign signs a message with the keypair.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.PrivateKey, message)
}
