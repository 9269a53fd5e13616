package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	payload := []byte(`{"domain":"example.com","score":0.73}`)
	if err := c.Set("k", payload, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, found := c.Get("k")
	if !found {
		t.Fatal("expected hit")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round-trip mismatch: got %q want %q", got, payload)
	}
}

func TestDiskCache_RoundTripBitIdentical(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)

	payload := []byte("\x00binary\xffdata")
	if err := c.Set(ReliabilityKey("example.com"), payload, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, found := c.Get(ReliabilityKey("example.com"))
	if !found {
		t.Fatal("expected hit before TTL expiry")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("cached value must be bit-identical: got %v want %v", got, payload)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)

	if err := c.Set("k", []byte("v"), -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, found := c.Get("k"); found {
		t.Error("expected expired entry to miss")
	}
}

func TestLayeredCache_DiskPromotion(t *testing.T) {
	dir := t.TempDir()
	c := NewLayeredCache(time.Minute, dir, time.Minute)

	if err := c.disk.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("seed disk: %v", err)
	}

	got, found := c.Get("k")
	if !found || string(got) != "v" {
		t.Fatalf("expected disk hit, got %q found=%v", got, found)
	}

	// Hit must now be served from memory as well.
	if _, found := c.memory.Get("k"); !found {
		t.Error("expected promotion into memory layer")
	}
}

func TestKeys_Namespaced(t *testing.T) {
	if PageKey("https://a.example/x") == PageKey("https://a.example/y") {
		t.Error("distinct URLs must produce distinct page keys")
	}
	if ReliabilityKey("example.com") != "veridex:reliability:example.com" {
		t.Errorf("unexpected reliability key: %s", ReliabilityKey("example.com"))
	}
}
