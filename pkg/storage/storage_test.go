package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	key := CertificateKey("CERT-20260101-abcdef0")
	if err := store.Save(ctx, key, ContentTypePDF, []byte("%PDF-1.4 body")); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "%PDF-1.4 body" {
		t.Fatalf("unexpected content %q", got)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Read(ctx, key); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist after delete, got %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("deleting a missing object should succeed, got %v", err)
	}
}

func TestLocalKeysStayInsideRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocal(root)
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	p, err := store.path("../../etc/passwd")
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if !strings.HasPrefix(p, root) {
		t.Fatalf("path %q escaped root %q", p, root)
	}
	if err := store.Save(ctx, "  ", ContentTypePDF, nil); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestKeys(t *testing.T) {
	if got := CertificateKey("CERT-1"); got != "certificates/cert-CERT-1.pdf" {
		t.Fatalf("CertificateKey = %q", got)
	}
	id := uuid.New()
	k := TemplateKey(id)
	if !strings.HasPrefix(k, FolderTemplates+"/event-"+id.String()+"-") || !strings.HasSuffix(k, ".pdf") {
		t.Fatalf("TemplateKey = %q", k)
	}
	if TemplateKey(id) == k {
		t.Fatal("template keys should be unique per upload")
	}
}

func TestIsPDF(t *testing.T) {
	cases := map[string]bool{
		"%PDF-1.7\n": true,
		"%PD":        false,
		"":           false,
		"<html>":     false,
	}
	for in, want := range cases {
		if got := IsPDF([]byte(in)); got != want {
			t.Errorf("IsPDF(%q) = %v, want %v", in, got, want)
		}
	}
}
