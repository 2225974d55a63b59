// Package capture buffers observed quotes and periodically flushes them to
// parquet files on disk, optionally mirroring each batch to S3.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "quoteflow/config"
	"quoteflow/internal/model"
	"quoteflow/logger"
)

// QuoteRecord is the on-disk row layout for captured quotes.
type QuoteRecord struct {
	Venue       string  `parquet:"name=venue, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol      string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Bid         float64 `parquet:"name=bid, type=DOUBLE"`
	BidQty      float64 `parquet:"name=bid_qty, type=DOUBLE"`
	Ask         float64 `parquet:"name=ask, type=DOUBLE"`
	AskQty      float64 `parquet:"name=ask_qty, type=DOUBLE"`
	TimestampMs int64   `parquet:"name=timestamp, type=INT64"`
}

// memoryFile implements the ParquetFile interface over a byte buffer so
// batches can be built without touching disk.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (m *memoryFile) Create(name string) (source.ParquetFile, error) { return m, nil }
func (m *memoryFile) Open(name string) (source.ParquetFile, error)   { return m, nil }
func (m *memoryFile) Seek(offset int64, whence int) (int64, error) {
	return int64(m.buffer.Len()), nil
}
func (m *memoryFile) Read(b []byte) (int, error)  { return m.buffer.Read(b) }
func (m *memoryFile) Write(b []byte) (int, error) { return m.buffer.Write(b) }
func (m *memoryFile) Close() error                { return nil }
func (m *memoryFile) Bytes() []byte               { return m.buffer.Bytes() }

// Recorder buffers quotes keyed by venue and pair and flushes on a timer or
// when the buffered count reaches the batch size.
type Recorder struct {
	cfg         appconfig.CaptureConfig
	s3Client    *s3.Client
	ctx         context.Context
	wg          sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	buffer      map[string][]model.Quote
	buffered    int
	flushTicker *time.Ticker
	log         *logger.Log
}

// NewRecorder builds a recorder. When S3 mirroring is enabled the AWS
// credentials must resolve or construction fails.
func NewRecorder(cfg appconfig.CaptureConfig) (*Recorder, error) {
	log := logger.GetLogger()

	r := &Recorder{
		cfg:    cfg,
		buffer: make(map[string][]model.Quote),
		log:    log,
	}

	if cfg.S3.Enabled {
		ctx := context.Background()
		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.S3.Region),
		}
		if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		creds, err := awsCfg.Credentials.Retrieve(ctx)
		if err != nil || !creds.HasKeys() {
			return nil, fmt.Errorf("aws credentials not found")
		}
		r.s3Client = s3.NewFromConfig(awsCfg)

		log.WithComponent("capture").WithFields(logger.Fields{
			"bucket": cfg.S3.Bucket,
			"region": cfg.S3.Region,
		}).Info("s3 mirroring enabled")
	}

	return r, nil
}

func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("recorder already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	if err := os.MkdirAll(r.cfg.Directory, 0o755); err != nil {
		return fmt.Errorf("failed to create capture directory: %w", err)
	}

	log := r.log.WithComponent("capture").WithFields(logger.Fields{
		"directory":      r.cfg.Directory,
		"flush_interval": r.cfg.FlushInterval,
		"batch_size":     r.cfg.BatchSize,
	})
	log.Info("starting quote recorder")

	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)
	r.wg.Add(1)
	go r.flushWorker()

	log.Info("quote recorder started")
	return nil
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	r.log.WithComponent("capture").Info("stopping quote recorder")
	r.wg.Wait()
	r.log.WithComponent("capture").Info("quote recorder stopped")
}

// Add buffers one quote. A full buffer triggers an early flush.
func (r *Recorder) Add(quote model.Quote) {
	key := bufferKey(quote.Venue, quote.Pair)
	r.mu.Lock()
	r.buffer[key] = append(r.buffer[key], quote)
	r.buffered++
	full := r.buffered >= r.cfg.BatchSize
	r.mu.Unlock()

	if full {
		r.flushBuffers("batch_size")
	}
}

// Buffered reports the number of quotes waiting to be flushed.
func (r *Recorder) Buffered() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buffered
}

func bufferKey(venueID string, pair model.Pair) string {
	return venueID + "|" + pair.Human()
}

func (r *Recorder) flushWorker() {
	defer r.wg.Done()

	log := r.log.WithComponent("capture").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-r.ctx.Done():
			r.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-r.flushTicker.C:
			r.flushBuffers("interval")
		}
	}
}

func (r *Recorder) flushBuffers(reason string) {
	r.mu.Lock()
	buffers := r.buffer
	r.buffer = make(map[string][]model.Quote)
	r.buffered = 0
	r.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	r.log.WithComponent("capture").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing buffers")

	for key, quotes := range buffers {
		if len(quotes) == 0 {
			continue
		}
		parts := strings.SplitN(key, "|", 2)
		r.writeBatch(parts[0], parts[1], quotes)
	}
}

func (r *Recorder) writeBatch(venueID, symbol string, quotes []model.Quote) {
	batchID := uuid.New().String()
	log := r.log.WithComponent("capture").WithFields(logger.Fields{
		"batch_id":     batchID,
		"venue":        venueID,
		"symbol":       symbol,
		"record_count": len(quotes),
	})

	data, err := r.createParquetFile(quotes)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	filename := fmt.Sprintf("%s_quotes_%s_%s.parquet",
		venueID, strings.ReplaceAll(symbol, "-", ""), time.Now().UTC().Format("20060102150405"))
	localPath := filepath.Join(r.cfg.Directory, filename)
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		log.WithError(err).Error("failed to write parquet file")
		return
	}

	logger.IncrementCaptureFlush(int64(len(quotes)))
	log.WithFields(logger.Fields{"file_size": len(data), "path": localPath}).Info("batch written")

	if r.s3Client != nil {
		if err := r.uploadToS3(r.s3Key(venueID, symbol, filename), data); err != nil {
			log.WithError(err).Error("failed to upload to S3")
		}
	}
}

func (r *Recorder) s3Key(venueID, symbol, filename string) string {
	parts := []string{
		fmt.Sprintf("venue=%s", venueID),
		fmt.Sprintf("symbol=%s", symbol),
		fmt.Sprintf("date=%s", time.Now().UTC().Format("2006-01-02")),
		filename,
	}
	if r.cfg.S3.Prefix != "" {
		parts = append([]string{r.cfg.S3.Prefix}, parts...)
	}
	return filepath.ToSlash(filepath.Join(parts...))
}

func (r *Recorder) createParquetFile(quotes []model.Quote) ([]byte, error) {
	fw := newMemoryFile()
	pw, err := writer.NewParquetWriter(fw, new(QuoteRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, q := range quotes {
		record := QuoteRecord{
			Venue:       q.Venue,
			Symbol:      q.Pair.Universal(),
			Bid:         q.Bid,
			BidQty:      q.BidQty,
			Ask:         q.Ask,
			AskQty:      q.AskQty,
			TimestampMs: q.TimestampMs,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

func (r *Recorder) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.cfg.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	}

	// Shutdown flushes must still complete the upload.
	ctx := context.WithoutCancel(r.ctx)
	if _, err := r.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", r.cfg.S3.Bucket, err)
	}
	return nil
}
