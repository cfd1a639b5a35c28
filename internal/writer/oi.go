package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "liqflow/config"
	"liqflow/internal/models"
	"liqflow/logger"
)

type oiParquetRecord struct {
	Exchange  string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	ValueUSD  float64 `parquet:"name=value_usd, type=DOUBLE"`
}

type oiMemFile struct {
	buffer *bytes.Buffer
}

func newOIMemFile() *oiMemFile {
	return &oiMemFile{buffer: &bytes.Buffer{}}
}

func (m *oiMemFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *oiMemFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *oiMemFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *oiMemFile) Read([]byte) (int, error)                  { return 0, io.EOF }
func (m *oiMemFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *oiMemFile) Close() error                              { return nil }
func (m *oiMemFile) Bytes() []byte                             { return m.buffer.Bytes() }

// OIWriter buffers open-interest snapshots and periodically writes them to S3
// as snappy-compressed parquet objects, one object per exchange and symbol.
type OIWriter struct {
	cfg           *appconfig.Config
	snapshots     <-chan models.OISnapshot
	s3Client      *s3.Client
	log           *logger.Log
	bucket        string
	ctx           context.Context
	cancel        context.CancelFunc
	wg            *sync.WaitGroup
	running       bool
	mu            sync.Mutex
	buffer        map[string][]models.OISnapshot
	lastFlush     map[string]time.Time
	flushInterval time.Duration
	flushTicker   *time.Ticker

	// test seam
	uploadFn func(key string, data []byte) error
}

// NewOIWriter initializes the open-interest writer from the shared S3 config.
func NewOIWriter(cfg *appconfig.Config, snapshots <-chan models.OISnapshot) (*OIWriter, error) {
	log := logger.GetLogger()
	if !cfg.Storage.S3.Enabled {
		return nil, fmt.Errorf("s3 storage is disabled")
	}

	bucket, err := normalizeBucketName(cfg.Storage.S3.Bucket)
	if err != nil {
		return nil, err
	}

	s3Client, err := newS3Client(cfg)
	if err != nil {
		return nil, err
	}

	w := &OIWriter{
		cfg:           cfg,
		snapshots:     snapshots,
		s3Client:      s3Client,
		log:           log,
		bucket:        bucket,
		wg:            &sync.WaitGroup{},
		buffer:        make(map[string][]models.OISnapshot),
		lastFlush:     make(map[string]time.Time),
		flushInterval: cfg.Writer.FlushInterval,
	}
	if w.flushInterval <= 0 {
		w.flushInterval = 5 * time.Minute
	}
	w.uploadFn = w.upload

	log.WithComponent("oi_writer").WithFields(logger.Fields{
		"bucket":         bucket,
		"flush_interval": w.flushInterval.String(),
	}).Info("open-interest writer initialized")

	return w, nil
}

// Start launches the ingestion and flush workers.
func (w *OIWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("open-interest writer already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.buffer = make(map[string][]models.OISnapshot)
	w.lastFlush = make(map[string]time.Time)
	w.flushTicker = time.NewTicker(time.Second)
	w.mu.Unlock()

	w.log.WithComponent("oi_writer").Info("starting open-interest writer")

	w.wg.Add(1)
	go w.worker()

	w.wg.Add(1)
	go w.flushWorker()

	return nil
}

// Stop signals the workers to terminate and flushes remaining data.
func (w *OIWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	ticker := w.flushTicker
	w.cancel = nil
	w.flushTicker = nil
	w.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}
	if cancel != nil {
		cancel()
	}

	w.wg.Wait()
	w.flushAll("stop")
	w.log.WithComponent("oi_writer").Info("open-interest writer stopped")
}

func (w *OIWriter) worker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case snap, ok := <-w.snapshots:
			if !ok {
				return
			}
			w.addSnapshot(snap)
		}
	}
}

func (w *OIWriter) flushWorker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.flushAll("context_cancelled")
			return
		case <-w.flushTicker.C:
			w.flushTimedOut()
		}
	}
}

func (w *OIWriter) addSnapshot(snap models.OISnapshot) {
	if snap.Exchange == "" || snap.Symbol == "" {
		return
	}
	key := w.bufferKey(snap.Exchange, snap.Symbol)
	w.mu.Lock()
	w.buffer[key] = append(w.buffer[key], snap)
	if _, ok := w.lastFlush[key]; !ok {
		w.lastFlush[key] = time.Now()
	}
	w.mu.Unlock()
}

func (w *OIWriter) flushTimedOut() {
	now := time.Now()
	w.mu.Lock()
	keys := make([]string, 0, len(w.buffer))
	for key := range w.buffer {
		if len(w.buffer[key]) == 0 {
			continue
		}
		if now.Sub(w.lastFlush[key]) >= w.flushInterval {
			keys = append(keys, key)
		}
	}
	w.mu.Unlock()

	for _, key := range keys {
		w.flushKey(key)
	}
}

func (w *OIWriter) flushAll(reason string) {
	w.mu.Lock()
	keys := make([]string, 0, len(w.buffer))
	for key := range w.buffer {
		if len(w.buffer[key]) > 0 {
			keys = append(keys, key)
		}
	}
	w.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	w.log.WithComponent("oi_writer").WithFields(logger.Fields{
		"flushed_buffers": len(keys),
		"reason":          reason,
	}).Info("flushing open-interest buffers")

	for _, key := range keys {
		w.flushKey(key)
	}
}

func (w *OIWriter) flushKey(key string) {
	w.mu.Lock()
	entries := w.buffer[key]
	if len(entries) == 0 {
		w.mu.Unlock()
		return
	}
	delete(w.buffer, key)
	delete(w.lastFlush, key)
	w.mu.Unlock()

	data, size, err := w.createParquet(entries)
	if err != nil {
		w.log.WithComponent("oi_writer").WithError(err).Error("failed to create parquet for open-interest batch")
		return
	}

	s3Key := w.generateS3Key(entries)
	if err := w.uploadFn(s3Key, data); err != nil {
		w.log.WithComponent("oi_writer").WithError(err).WithFields(logger.Fields{
			"s3_key": s3Key,
		}).Error("failed to upload open-interest batch, re-buffering")
		w.mu.Lock()
		w.buffer[key] = append(entries, w.buffer[key]...)
		w.lastFlush[key] = time.Now()
		w.mu.Unlock()
		return
	}

	logger.IncrementS3Write(size)
	w.log.WithComponent("oi_writer").WithFields(logger.Fields{
		"s3_key":  s3Key,
		"records": len(entries),
		"bytes":   size,
	}).Info("open-interest batch uploaded")
}

func (w *OIWriter) createParquet(entries []models.OISnapshot) ([]byte, int64, error) {
	mf := newOIMemFile()
	pw, err := writer.NewParquetWriter(mf, new(oiParquetRecord), 1)
	if err != nil {
		return nil, 0, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, entry := range entries {
		rec := oiParquetRecord{
			Exchange:  strings.ToLower(entry.Exchange),
			Symbol:    strings.ToUpper(entry.Symbol),
			Timestamp: entry.Timestamp.UTC().UnixMilli(),
			ValueUSD:  entry.ValueUSD,
		}
		if err := pw.Write(rec); err != nil {
			return nil, 0, err
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("finalize parquet: %w", err)
	}

	data := mf.Bytes()
	return data, int64(len(data)), nil
}

func (w *OIWriter) generateS3Key(entries []models.OISnapshot) string {
	last := entries[len(entries)-1]
	timestamp := last.Timestamp.UTC()

	parts := []string{
		fmt.Sprintf("exchange=%s", strings.ToLower(last.Exchange)),
		"market=open_interest",
		fmt.Sprintf("symbol=%s", strings.ToUpper(last.Symbol)),
		fmt.Sprintf("date=%04d-%02d-%02d", timestamp.Year(), timestamp.Month(), timestamp.Day()),
	}

	ts := timestamp.Format("20060102150405")
	filename := fmt.Sprintf("%s_oi_%s_%s.parquet", strings.ToLower(last.Exchange), strings.ToUpper(last.Symbol), ts)
	return filepath.ToSlash(filepath.Join(append(parts, filename)...))
}

func (w *OIWriter) upload(key string, data []byte) error {
	if w.bucket == "" {
		return fmt.Errorf("s3 bucket not configured")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}

	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, input)
	return err
}

func (w *OIWriter) bufferKey(exchange, symbol string) string {
	return strings.ToLower(strings.TrimSpace(exchange)) + liquidationKeySeparator + strings.ToUpper(strings.TrimSpace(symbol))
}
