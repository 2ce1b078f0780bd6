package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	values    map[string]string
	evalCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

// Eval mimics the compare-and-delete script as the single server-side step.
func (f *fakeStore) Eval(_ context.Context, script string, keys []string, args ...any) (any, error) {
	f.evalCalls++
	if script != releaseScript || len(keys) != 1 || len(args) != 1 {
		return nil, errors.New("unexpected eval invocation")
	}
	owner, ok := args[0].(string)
	if !ok {
		return nil, errors.New("owner argument must be a string")
	}
	if f.values[keys[0]] == owner {
		delete(f.values, keys[0])
		return int64(1), nil
	}
	return int64(0), nil
}

func TestAcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	first, err := NewRedisLock(store, "pms:lock:relay", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, err := NewRedisLock(store, "pms:lock:relay", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if ok {
		t.Fatal("expected second acquire to fail while lock is held")
	}
}

func TestReleaseOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	holder, _ := NewRedisLock(store, "pms:lock:relay", time.Minute)
	bystander, _ := NewRedisLock(store, "pms:lock:relay", time.Minute)

	if ok, _ := holder.Acquire(ctx); !ok {
		t.Fatal("holder failed to acquire")
	}

	// a lock that never acquired must not free the holder's lease
	if err := bystander.Release(ctx); err != nil {
		t.Fatalf("bystander release errored: %v", err)
	}
	if _, ok := store.values["pms:lock:relay"]; !ok {
		t.Fatal("lease vanished after non-owner release")
	}

	if err := holder.Release(ctx); err != nil {
		t.Fatalf("holder release errored: %v", err)
	}
	if _, ok := store.values["pms:lock:relay"]; ok {
		t.Fatal("lease should be gone after owner release")
	}

	// releasing twice is a no-op
	if err := holder.Release(ctx); err != nil {
		t.Fatalf("double release errored: %v", err)
	}
}

func TestReleaseIgnoresStolenLease(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	holder, _ := NewRedisLock(store, "pms:lock:relay", time.Minute)
	if ok, _ := holder.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// simulate TTL expiry plus takeover by another instance
	store.values["pms:lock:relay"] = "someone-else"

	if err := holder.Release(ctx); err != nil {
		t.Fatalf("release errored: %v", err)
	}
	if store.values["pms:lock:relay"] != "someone-else" {
		t.Fatal("release must not delete a lease it no longer owns")
	}
}

func TestReleaseIsSingleServerSideStep(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	holder, _ := NewRedisLock(store, "pms:lock:relay", time.Minute)
	if ok, _ := holder.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	if err := holder.Release(ctx); err != nil {
		t.Fatalf("release errored: %v", err)
	}
	// one script call carries both the owner check and the delete, so a
	// takeover after TTL expiry cannot slip in between them
	if store.evalCalls != 1 {
		t.Fatalf("expected one eval call, got %d", store.evalCalls)
	}
	if _, ok := store.values["pms:lock:relay"]; ok {
		t.Fatal("lease should be gone after owner release")
	}
}

func TestNewRedisLockValidation(t *testing.T) {
	if _, err := NewRedisLock(nil, "key", time.Minute); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisLock(newFakeStore(), "", time.Minute); err == nil {
		t.Fatal("expected error for empty key")
	}
}
