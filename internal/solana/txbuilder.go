package solana

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
)

// AccountMeta describes how an instruction touches an account.
type AccountMeta struct {
	Pubkey     string
	IsSigner   bool
	IsWritable bool
}

// Instruction is one program invocation within a transaction.
type Instruction struct {
	ProgramID string
	Accounts  []AccountMeta
	Data      []byte
}

// splTransferInstruction is the SPL Token program's Transfer variant tag.
const splTransferInstruction = 3

// NewTokenTransferInstruction builds an SPL token transfer of amount (in
// the token's smallest unit) from source to destination token accounts,
// authorized by owner.
func NewTokenTransferInstruction(source, destination, owner string, amount uint64) Instruction {
	data := make([]byte, 9)
	data[0] = splTransferInstruction
	binary.LittleEndian.PutUint64(data[1:], amount)

	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: source, IsWritable: true},
			{Pubkey: destination, IsWritable: true},
			{Pubkey: owner, IsSigner: true},
		},
		Data: data,
	}
}

// NewCreateAssociatedTokenAccountInstruction builds the instruction that
// creates owner's deterministic token-holding account for mint, funded by
// payer. Prepended only when the destination account does not yet exist.
func NewCreateAssociatedTokenAccountInstruction(payer, associatedAccount, owner, mint string) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: associatedAccount, IsWritable: true},
			{Pubkey: owner},
			{Pubkey: mint},
			{Pubkey: SystemProgramID},
			{Pubkey: TokenProgramID},
		},
		Data: nil,
	}
}

// Transaction is a compiled legacy transaction. Serialize produces the
// wire form with zeroed signature slots for out-of-band signing; Sign
// fills the slots whose keys the caller holds.
type Transaction struct {
	message      []byte
	signerKeys   []string
	requiredSigs int
}

// compiledAccount tracks merged flags for one account across instructions.
type compiledAccount struct {
	pubkey   string
	signer   bool
	writable bool
}

// BuildTransaction compiles instructions into a legacy transaction message
// with feePayer as the first signer and the given recent blockhash.
func BuildTransaction(feePayer, recentBlockhash string, instructions []Instruction) (*Transaction, error) {
	if feePayer == "" {
		return nil, fmt.Errorf("fee payer required")
	}
	if len(instructions) == 0 {
		return nil, fmt.Errorf("no instructions")
	}

	// Merge account metas: signer/writable flags OR together.
	merged := map[string]*compiledAccount{
		feePayer: {pubkey: feePayer, signer: true, writable: true},
	}
	order := []string{feePayer}
	touch := func(pubkey string, signer, writable bool) {
		acc, ok := merged[pubkey]
		if !ok {
			acc = &compiledAccount{pubkey: pubkey}
			merged[pubkey] = acc
			order = append(order, pubkey)
		}
		acc.signer = acc.signer || signer
		acc.writable = acc.writable || writable
	}
	for _, ins := range instructions {
		for _, meta := range ins.Accounts {
			touch(meta.Pubkey, meta.IsSigner, meta.IsWritable)
		}
		touch(ins.ProgramID, false, false)
	}

	// Layout order: writable signers, readonly signers, writable
	// non-signers, readonly non-signers. Fee payer stays first.
	accounts := make([]*compiledAccount, 0, len(order))
	for _, pubkey := range order {
		accounts = append(accounts, merged[pubkey])
	}
	rank := func(a *compiledAccount) int {
		switch {
		case a.pubkey == feePayer:
			return 0
		case a.signer && a.writable:
			return 1
		case a.signer:
			return 2
		case a.writable:
			return 3
		default:
			return 4
		}
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		return rank(accounts[i]) < rank(accounts[j])
	})

	indexOf := make(map[string]int, len(accounts))
	var numRequiredSigs, numReadonlySigned, numReadonlyUnsigned int
	var signerKeys []string
	for i, acc := range accounts {
		indexOf[acc.pubkey] = i
		if acc.signer {
			numRequiredSigs++
			signerKeys = append(signerKeys, acc.pubkey)
			if !acc.writable {
				numReadonlySigned++
			}
		} else if !acc.writable {
			numReadonlyUnsigned++
		}
	}

	blockhash, err := base58.Decode(recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("decode blockhash: %w", err)
	}
	if len(blockhash) != 32 {
		return nil, fmt.Errorf("blockhash: expected 32 bytes, got %d", len(blockhash))
	}

	// Serialize the legacy message.
	var msg []byte
	msg = append(msg, byte(numRequiredSigs), byte(numReadonlySigned), byte(numReadonlyUnsigned))
	msg = appendCompactU16(msg, len(accounts))
	for _, acc := range accounts {
		key, err := DecodePubkey(acc.pubkey)
		if err != nil {
			return nil, err
		}
		msg = append(msg, key...)
	}
	msg = append(msg, blockhash...)
	msg = appendCompactU16(msg, len(instructions))
	for _, ins := range instructions {
		msg = append(msg, byte(indexOf[ins.ProgramID]))
		msg = appendCompactU16(msg, len(ins.Accounts))
		for _, meta := range ins.Accounts {
			msg = append(msg, byte(indexOf[meta.Pubkey]))
		}
		msg = appendCompactU16(msg, len(ins.Data))
		msg = append(msg, ins.Data...)
	}

	return &Transaction{
		message:      msg,
		signerKeys:   signerKeys,
		requiredSigs: numRequiredSigs,
	}, nil
}

// Message returns the serialized message bytes that signers sign.
func (t *Transaction) Message() []byte {
	out := make([]byte, len(t.message))
	copy(out, t.message)
	return out
}

// SignerKeys returns the required signer addresses in signature order.
func (t *Transaction) SignerKeys() []string {
	return append([]string{}, t.signerKeys...)
}

// Serialize produces the wire-format transaction. Signature slots for
// signers without a provided keypair are zero-filled, which is the form
// handed to a client for out-of-band signing.
func (t *Transaction) Serialize(signers ...*Keypair) ([]byte, error) {
	byAddress := make(map[string]*Keypair, len(signers))
	for _, kp := range signers {
		byAddress[kp.Address] = kp
	}

	var out []byte
	out = appendCompactU16(out, t.requiredSigs)
	for _, signer := range t.signerKeys {
		if kp, ok := byAddress[signer]; ok {
			out = append(out, kp.Sign(t.message)...)
		} else {
			out = append(out, make([]byte, ed25519.SignatureSize)...)
		}
	}
	out = append(out, t.message...)
	return out, nil
}

// SignedBy requires every signer to be present and returns the fully
// signed wire form plus the transaction signature (the fee payer's,
// base58).
func (t *Transaction) SignedBy(signers ...*Keypair) ([]byte, string, error) {
	byAddress := make(map[string]*Keypair, len(signers))
	for _, kp := range signers {
		byAddress[kp.Address] = kp
	}
	for _, signer := range t.signerKeys {
		if _, ok := byAddress[signer]; !ok {
			return nil, "", fmt.Errorf("missing signer %s", signer)
		}
	}

	wire, err := t.Serialize(signers...)
	if err != nil {
		return nil, "", err
	}

	first := byAddress[t.signerKeys[0]]
	signature := base58.Encode(first.Sign(t.message))
	return wire, signature, nil
}

// appendCompactU16 appends the shortvec length encoding used by the
// transaction wire format.
func appendCompactU16(buf []byte, v int) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}
