package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

const validHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z0x3ZGkqPq9Wm5C6K2mLJ0Oe"

type fakeSetter struct {
	accounts map[string]string
	err      error
	calls    int
}

func (f *fakeSetter) SetPasswordHashByEmail(_ context.Context, email, hash string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.accounts[email]; !ok {
		return false, nil
	}
	f.accounts[email] = hash
	return true, nil
}

func TestImportHashesSortsEntries(t *testing.T) {
	setter := &fakeSetter{accounts: map[string]string{
		"parent@example.com": "old",
		"admin@example.com":  "old",
	}}
	entries := []hashEntry{
		{Email: " Parent@Example.com ", Hash: validHash},
		{Email: "admin@example.com", Hash: validHash},
		{Email: "ghost@example.com", Hash: validHash},
		{Email: "plain@example.com", Hash: "hunter2"},
		{Email: "", Hash: validHash},
	}

	result, err := importHashes(context.Background(), setter, entries, []string{"admin@example.com"})
	if err != nil {
		t.Fatalf("importHashes: %v", err)
	}
	if len(result.Updated) != 1 || result.Updated[0] != "parent@example.com" {
		t.Fatalf("updated = %v", result.Updated)
	}
	if len(result.Excluded) != 1 || result.Excluded[0] != "admin@example.com" {
		t.Fatalf("excluded = %v", result.Excluded)
	}
	if len(result.Missing) != 1 || result.Missing[0] != "ghost@example.com" {
		t.Fatalf("missing = %v", result.Missing)
	}
	if len(result.Invalid) != 2 {
		t.Fatalf("invalid = %v", result.Invalid)
	}
	if setter.accounts["parent@example.com"] != validHash {
		t.Fatal("expected parent hash to be replaced")
	}
	if setter.accounts["admin@example.com"] != "old" {
		t.Fatal("excluded account was modified")
	}
	if setter.calls != 2 {
		t.Fatalf("expected 2 store calls, got %d", setter.calls)
	}
}

func TestImportHashesStopsOnStoreError(t *testing.T) {
	setter := &fakeSetter{err: errors.New("connection reset")}
	entries := []hashEntry{
		{Email: "a@example.com", Hash: validHash},
		{Email: "b@example.com", Hash: validHash},
	}
	_, err := importHashes(context.Background(), setter, entries, nil)
	if err == nil || !strings.Contains(err.Error(), "a@example.com") {
		t.Fatalf("expected error naming the first address, got %v", err)
	}
	if setter.calls != 1 {
		t.Fatalf("expected import to stop after first failure, got %d calls", setter.calls)
	}
}

func TestReadHashEntries(t *testing.T) {
	entries, err := readHashEntries(strings.NewReader(`[{"email":"a@example.com","hash":"x"}]`))
	if err != nil {
		t.Fatalf("readHashEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Email != "a@example.com" {
		t.Fatalf("entries = %+v", entries)
	}

	if _, err := readHashEntries(strings.NewReader(`{"email":"a"}`)); err == nil {
		t.Fatal("expected error for non-array input")
	}
}

func TestPrintImportResultDryRun(t *testing.T) {
	var out bytes.Buffer
	printImportResult(&out, importResult{
		Updated:  []string{"a@example.com"},
		Excluded: []string{"b@example.com"},
	}, true)
	got := out.String()
	if !strings.Contains(got, "would update 1 account(s)") {
		t.Fatalf("output = %q", got)
	}
	if !strings.Contains(got, "excluded: b@example.com") {
		t.Fatalf("output = %q", got)
	}
	if strings.Contains(got, "no account") {
		t.Fatalf("unexpected missing line in %q", got)
	}
}
