package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/storage"
)

func TestSwapIntentStore_PutGetDelete(t *testing.T) {
	store := NewSwapIntentStore()
	ctx := context.Background()

	intent := &domain.SwapIntent{
		ID:          "intent1",
		Wallet:      "wallet1",
		Direction:   domain.DirectionTokenToCurrency,
		GrossAmount: 1000,
		TaxAmount:   30,
		NetAmount:   970,
		RawAmount:   big.NewInt(1000000000),
		CreatedAt:   time.Unix(1700000000, 0),
	}

	if err := store.Put(ctx, intent); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "intent1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.NetAmount != 970 {
		t.Errorf("NetAmount mismatch: got %d, want 970", got.NetAmount)
	}
	if got.RawAmount.Cmp(big.NewInt(1000000000)) != 0 {
		t.Errorf("RawAmount mismatch: got %s", got.RawAmount)
	}

	if err := store.Delete(ctx, "intent1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "intent1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSwapIntentStore_DeleteConsumesOnce(t *testing.T) {
	store := NewSwapIntentStore()
	ctx := context.Background()

	intent := &domain.SwapIntent{
		ID:        "intent1",
		Wallet:    "wallet1",
		Direction: domain.DirectionTokenToCurrency,
		RawAmount: big.NewInt(1),
	}
	if err := store.Put(ctx, intent); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := store.Delete(ctx, "intent1"); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "intent1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete should return ErrNotFound, got %v", err)
	}
}

func TestSwapIntentStore_DuplicateID(t *testing.T) {
	store := NewSwapIntentStore()
	ctx := context.Background()

	intent := &domain.SwapIntent{ID: "intent1", Wallet: "wallet1", RawAmount: big.NewInt(1)}
	if err := store.Put(ctx, intent); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, intent); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestSwapIntentStore_GetReturnsCopy(t *testing.T) {
	store := NewSwapIntentStore()
	ctx := context.Background()

	intent := &domain.SwapIntent{ID: "intent1", Wallet: "wallet1", RawAmount: big.NewInt(100)}
	if err := store.Put(ctx, intent); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, _ := store.Get(ctx, "intent1")
	got.RawAmount.SetInt64(999)
	got.Wallet = "attacker"

	again, _ := store.Get(ctx, "intent1")
	if again.RawAmount.Int64() != 100 || again.Wallet != "wallet1" {
		t.Errorf("stored intent was mutated through a returned copy: %+v", again)
	}
}

func TestSwapIntentStore_InvalidInput(t *testing.T) {
	store := NewSwapIntentStore()
	ctx := context.Background()

	if err := store.Put(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil intent: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Put(ctx, &domain.SwapIntent{Wallet: "w"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("missing id: expected ErrInvalidInput, got %v", err)
	}
}
