package watchlist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"btcusdt", "BTCUSDT", false},
		{"  SolUsdt ", "SOLUSDT", false},
		{"1000PEPEUSDT", "1000PEPEUSDT", false},
		{"BTCBUSD", "", true},
		{"USDT", "", true},
		{"BTC-USDT", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidSymbol) {
				t.Errorf("Expected ErrInvalidSymbol, got %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFileStoreSeedsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.json")

	fs, err := NewFileStore(path, []string{"btcusdt", "ETHUSDT", "BTCUSDT"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	got, _ := fs.List(context.Background())
	if strings.Join(got, ",") != "BTCUSDT,ETHUSDT" {
		t.Errorf("Unexpected symbols %v", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected file to be written: %v", err)
	}
	if !strings.Contains(string(data), `"symbols"`) {
		t.Errorf("Unexpected file content %s", data)
	}
}

func TestFileStoreAddRemove(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "symbols.json")

	fs, err := NewFileStore(path, []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := fs.Add(ctx, "solusdt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := fs.Add(ctx, "SOLUSDT"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
	if err := fs.Add(ctx, "SOLBTC"); !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("Expected ErrInvalidSymbol, got %v", err)
	}
	if err := fs.Remove(ctx, "DOGEUSDT"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := fs.Remove(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := fs.Remove(ctx, "SOLUSDT"); !errors.Is(err, ErrLastSymbol) {
		t.Errorf("Expected ErrLastSymbol, got %v", err)
	}

	// reload from disk
	reloaded, err := NewFileStore(path, []string{"ETHUSDT"})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	got, _ := reloaded.List(ctx)
	if len(got) != 1 || got[0] != "SOLUSDT" {
		t.Errorf("Expected [SOLUSDT] after reload, got %v", got)
	}
}

func TestFileStoreListIsCopy(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "symbols.json"), []string{"BTCUSDT", "ETHUSDT"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	list, _ := fs.List(context.Background())
	list[0] = "MUTATED"

	again, _ := fs.List(context.Background())
	if again[0] != "BTCUSDT" {
		t.Error("List should return a copy")
	}
}

func TestFileStoreBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path, nil); err == nil {
		t.Error("Expected parse error")
	}
}
