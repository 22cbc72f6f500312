package convstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashureev/agentdesk/internal/domain"
)

func sampleSnapshot(userID string) Snapshot {
	return Snapshot{
		UserID: userID,
		Messages: []domain.Message{
			domain.NewText(domain.SenderUser, "cheapest sony headphones"),
			{Sender: domain.SenderBot, Result: "1 product found", Products: []domain.Product{{"id": "p1", "name": "WH-1000"}}},
		},
		Profile: domain.UserProfile{CustomerName: "Jane", Address: "123 Main St"},
	}
}

func testSalt() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func TestSealedCodecRoundTripAndTamper(t *testing.T) {
	codec, err := NewSealedCodec("secret", testSalt())
	if err != nil {
		t.Fatalf("NewSealedCodec: %v", err)
	}
	data, err := codec.Encode(sampleSnapshot("u1"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if bytes.Contains(data, []byte("Jane")) {
		t.Fatal("ciphertext leaks plaintext")
	}

	snap, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snap.Profile.CustomerName != "Jane" || len(snap.Messages) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	data[len(data)-1] ^= 0xff
	if _, err := codec.Decode(data); err == nil {
		t.Fatal("expected tampered ciphertext to fail")
	}

	other, _ := NewSealedCodec("other", testSalt())
	fresh, _ := codec.Encode(sampleSnapshot("u1"))
	if _, err := other.Decode(fresh); err == nil {
		t.Fatal("expected wrong key to fail")
	}
}

func TestNewSealedCodecRejectsWeakInput(t *testing.T) {
	if _, err := NewSealedCodec("", testSalt()); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewSealedCodec("s", []byte("short")); err == nil {
		t.Fatal("expected error for short salt")
	}
}

func TestGetOrCreateSaltIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".salt")
	first, err := GetOrCreateSalt(path)
	if err != nil {
		t.Fatalf("GetOrCreateSalt: %v", err)
	}
	second, err := GetOrCreateSalt(path)
	if err != nil {
		t.Fatalf("GetOrCreateSalt: %v", err)
	}
	if len(first) != 32 || !bytes.Equal(first, second) {
		t.Fatal("salt should be persisted and reused")
	}
}

func TestSQLiteStoreSaveLoad(t *testing.T) {
	codec, err := NewSealedCodec("secret", testSalt())
	if err != nil {
		t.Fatalf("NewSealedCodec: %v", err)
	}
	store, err := NewSQLite(filepath.Join(t.TempDir(), "conv.db"), codec, nil)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	empty, err := store.Load(ctx, "nobody")
	if err != nil || len(empty.Messages) != 0 || empty.Messages == nil {
		t.Fatalf("expected empty non-nil transcript, got %+v, %v", empty, err)
	}

	if err := store.Save(ctx, sampleSnapshot("u1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap := sampleSnapshot("u1")
	snap.Messages = snap.Messages[:1]
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}

	got, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Messages) != 1 || got.Profile.Address != "123 Main St" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestSQLiteStoreUndecodableRecordStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.db")
	plain, err := NewSQLite(path, PlainCodec{}, nil)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := plain.Save(context.Background(), sampleSnapshot("u1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	plain.Close()

	codec, _ := NewSealedCodec("secret", testSalt())
	sealed, err := NewSQLite(path, codec, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer sealed.Close()

	got, err := sealed.Load(context.Background(), "u1")
	if err != nil || len(got.Messages) != 0 {
		t.Fatalf("expected empty transcript, got %+v, %v", got, err)
	}
}

func TestRedisStoreSaveLoad(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	store, err := NewRedis(RedisConfig{Address: addr, Prefix: "agentdesk:test:"}, PlainCodec{}, nil)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, sampleSnapshot("u-redis")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(ctx, "u-redis")
	if err != nil || got.Profile.CustomerName != "Jane" {
		t.Fatalf("unexpected snapshot %+v, %v", got, err)
	}
}
