package solana

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
)

// deterministic test keypairs.
func testKeypair(t *testing.T, seedByte byte) *Keypair {
	t.Helper()
	seed := bytes.Repeat([]byte{seedByte}, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	kp, err := ParseKeypair(base58.Encode(priv))
	if err != nil {
		t.Fatalf("ParseKeypair: %v", err)
	}
	return kp
}

func TestParseKeypair(t *testing.T) {
	kp := testKeypair(t, 7)

	pub, err := DecodePubkey(kp.Address)
	if err != nil {
		t.Fatalf("address is not a valid pubkey: %v", err)
	}
	if !bytes.Equal(pub, kp.PrivateKey.Public().(ed25519.PublicKey)) {
		t.Error("address does not match the public key")
	}

	msg := []byte("settlement")
	sig := kp.Sign(msg)
	if !ed25519.Verify(pub, msg, sig) {
		t.Error("signature does not verify")
	}
}

func TestParseKeypair_Invalid(t *testing.T) {
	if _, err := ParseKeypair("not-base58-!!!"); err == nil {
		t.Error("expected error for invalid base58")
	}
	if _, err := ParseKeypair(base58.Encode([]byte{1, 2, 3})); err == nil {
		t.Error("expected error for short key")
	}
}

func TestDeriveAssociatedTokenAccount(t *testing.T) {
	owner := testKeypair(t, 1).Address
	mint := testKeypair(t, 2).Address

	ata, err := DeriveAssociatedTokenAccount(owner, mint)
	if err != nil {
		t.Fatalf("DeriveAssociatedTokenAccount: %v", err)
	}

	raw, err := base58.Decode(ata)
	if err != nil || len(raw) != 32 {
		t.Fatalf("derived address is not a 32-byte base58 key: %v", err)
	}

	// Program-derived addresses must be off the ed25519 curve.
	if isOnCurve(raw) {
		t.Error("derived address is on-curve; it must be a PDA")
	}

	// Derivation is deterministic.
	again, err := DeriveAssociatedTokenAccount(owner, mint)
	if err != nil {
		t.Fatalf("second derivation: %v", err)
	}
	if again != ata {
		t.Errorf("derivation not deterministic: %s vs %s", ata, again)
	}

	// Different owner or mint derives a different account.
	other, err := DeriveAssociatedTokenAccount(mint, owner)
	if err != nil {
		t.Fatalf("swapped derivation: %v", err)
	}
	if other == ata {
		t.Error("distinct (owner, mint) pairs derived the same account")
	}
}

func TestFindProgramAddress_OffCurve(t *testing.T) {
	seeds := [][]byte{[]byte("treasury"), []byte("grmc")}
	address, bump, err := FindProgramAddress(seeds, TokenProgramID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}

	raw, err := base58.Decode(address)
	if err != nil {
		t.Fatalf("decode derived address: %v", err)
	}
	if isOnCurve(raw) {
		t.Errorf("address with bump %d is on-curve", bump)
	}
}
