package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"tracebase/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()
	info, err := store.Put(ctx, "submissions/a/report.json", bytes.NewReader([]byte("{}")), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"study": "Obesity"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 2 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "submissions/a/report.json", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := store.Get(ctx, "submissions/a/report.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "{}" || got.Metadata["study"] != "Obesity" {
		t.Fatalf("unexpected blob %q %+v", body, got)
	}
	got.Metadata["study"] = "changed"
	head, _ := store.Head(ctx, "submissions/a/report.json")
	if head.Metadata["study"] != "Obesity" {
		t.Fatalf("metadata leaked through Get")
	}
}

func TestStoreMissingAndList(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false, got %v %v", ok, err)
	}
	for _, k := range []string{"b/2", "a/1", "b/1"} {
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte(k)), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "b/")
	if err != nil || len(list) != 2 || list[0].Key != "b/1" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	if ok, _ := store.Delete(ctx, "b/1"); !ok {
		t.Fatalf("expected delete true")
	}
	if store.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver")
	}
}
