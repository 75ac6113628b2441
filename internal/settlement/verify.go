package settlement

import (
	"fmt"
	"math/big"

	"chefcoin-bridge/internal/solana"
)

// verifyExactTransfer checks that tx moved exactly want base units of mint
// from sender to recipient: the sender's token balance decreased by want
// and the recipient's increased by want. Any mismatch is rejected so a
// proof can never settle for a different amount than its intent.
func verifyExactTransfer(tx *solana.ParsedTransaction, sender, recipient, mint string, want *big.Int) error {
	if tx.Err != nil {
		return fmt.Errorf("%w: %v", ErrOnChainFailure, tx.Err)
	}

	sent := new(big.Int).Neg(tx.OwnerDelta(sender, mint))
	if sent.Cmp(want) != 0 {
		return fmt.Errorf("%w: wallet %s sent %s, expected %s",
			ErrAmountMismatch, sender, sent, want)
	}

	received := tx.OwnerDelta(recipient, mint)
	if received.Cmp(want) != 0 {
		return fmt.Errorf("%w: counterparty %s received %s, expected %s",
			ErrAmountMismatch, recipient, received, want)
	}

	return nil
}
