package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appconfig "quoteflow/config"
	"quoteflow/internal/model"
)

func testConfig(t *testing.T) appconfig.CaptureConfig {
	t.Helper()
	return appconfig.CaptureConfig{
		Enabled:       true,
		Directory:     t.TempDir(),
		FlushInterval: time.Hour,
		BatchSize:     100,
	}
}

func testQuote(venueID string, tsMs int64) model.Quote {
	return model.Quote{
		Venue:       venueID,
		Pair:        model.Pair{Base: "BTC", Quote: "USDT"},
		Bid:         50000,
		BidQty:      1,
		Ask:         50001,
		AskQty:      2,
		TimestampMs: tsMs,
	}
}

func TestAddAndFlush(t *testing.T) {
	cfg := testConfig(t)
	r, err := NewRecorder(cfg)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 10; i++ {
		r.Add(testQuote("mock", int64(1700000000000+i)))
	}
	if r.Buffered() != 10 {
		t.Errorf("Buffered = %d, want 10", r.Buffered())
	}

	// Shutdown drains the buffer to disk.
	cancel()
	r.Stop()

	if r.Buffered() != 0 {
		t.Errorf("Buffered after stop = %d", r.Buffered())
	}
	files := parquetFiles(t, cfg.Directory)
	if len(files) != 1 {
		t.Fatalf("files = %v, want one parquet file", files)
	}
	if !strings.HasPrefix(filepath.Base(files[0]), "mock_quotes_BTCUSDT_") {
		t.Errorf("unexpected file name %s", files[0])
	}
	info, err := os.Stat(files[0])
	if err != nil || info.Size() == 0 {
		t.Errorf("parquet file empty or missing: %v", err)
	}
}

func TestBatchSizeFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 5
	r, err := NewRecorder(cfg)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		cancel()
		r.Stop()
	}()

	for i := 0; i < 5; i++ {
		r.Add(testQuote("mock", int64(1700000000000+i)))
	}

	// Reaching the batch size flushes synchronously.
	if r.Buffered() != 0 {
		t.Errorf("Buffered = %d, want 0 after batch flush", r.Buffered())
	}
	if files := parquetFiles(t, cfg.Directory); len(files) != 1 {
		t.Errorf("files = %v, want one parquet file", files)
	}
}

func TestSeparateBuffersPerVenue(t *testing.T) {
	cfg := testConfig(t)
	r, err := NewRecorder(cfg)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.Add(testQuote("mock", 1700000000000))
	r.Add(testQuote("binance", 1700000000001))

	cancel()
	r.Stop()

	files := parquetFiles(t, cfg.Directory)
	if len(files) != 2 {
		t.Fatalf("files = %v, want one per venue", files)
	}
}

func TestDoubleStart(t *testing.T) {
	r, err := NewRecorder(testConfig(t))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
	cancel()
	r.Stop()
}

func parquetFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}
