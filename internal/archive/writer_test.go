package archive

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriterAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	defer w.Close()

	if err := w.Append("BTCUSDT", "trade", map[string]any{"price": 100.5}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append("BTCUSDT", "trade", map[string]any{"price": 101.25}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	path := filepath.Join(dir, "BTCUSDT", "trade.jsonl")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal line 0: %v", err)
	}
	if first["price"] != 100.5 {
		t.Fatalf("unexpected first line: %v", first)
	}
}

func TestWriterSeparatesSymbolsAndKinds(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	defer w.Close()

	w.Append("BTCUSDT", "trade", map[string]any{"n": 1})
	w.Append("BTCUSDT", "orderbook", map[string]any{"n": 2})
	w.Append("ETHUSDT", "trade", map[string]any{"n": 3})

	for _, p := range []string{
		filepath.Join(dir, "BTCUSDT", "trade.jsonl"),
		filepath.Join(dir, "BTCUSDT", "orderbook.jsonl"),
		filepath.Join(dir, "ETHUSDT", "trade.jsonl"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to exist: %v", p, err)
		}
	}
}
