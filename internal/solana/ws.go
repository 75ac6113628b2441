package solana

import "context"

// SignatureConfirmer waits for a submitted transaction to reach confirmed
// commitment. Implementations: WSConfirmer (push, signatureSubscribe) and
// the HTTPClient's polling ConfirmTransaction.
type SignatureConfirmer interface {
	ConfirmTransaction(ctx context.Context, signature string) error
}
