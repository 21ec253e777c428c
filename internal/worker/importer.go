// Package worker runs bulk imports of NDJSON clinical documents through the DocumentWriter.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driving"
)

// maxLineBytes bounds one NDJSON line
const maxLineBytes = 4 << 20

// Importer writes NDJSON documents with a fixed number of concurrent workers.
// Each line is one document; a failed line is recorded and does not stop the import.
type Importer struct {
	writer      driving.DocumentWriter
	concurrency int
	logger      *slog.Logger
}

// ImporterConfig holds configuration for the importer.
type ImporterConfig struct {
	Writer      driving.DocumentWriter
	Concurrency int // Number of concurrent writers
	Logger      *slog.Logger
}

// NewImporter creates a new bulk importer.
func NewImporter(cfg ImporterConfig) *Importer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Importer{
		writer:      cfg.Writer,
		concurrency: concurrency,
		logger:      logger.With("component", "importer"),
	}
}

// LineError is the failure of one input line
type LineError struct {
	Line int    `json:"line"`
	Err  error  `json:"-"`
	Msg  string `json:"error"`
}

func (e *LineError) Error() string {
	return e.Msg
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Result summarizes an import
type Result struct {
	Index    string        `json:"index"`
	Lines    int           `json:"lines"`
	Written  int           `json:"written"`
	Failed   int           `json:"failed"`
	Errors   []*LineError  `json:"errors,omitempty"`
	Duration time.Duration `json:"duration" swaggertype:"integer"`
}

type job struct {
	line int
	data []byte
}

// Import reads r line by line and writes every document into index.
// Returns the caller's context error if cancelled; lines already written stay written.
func (im *Importer) Import(ctx context.Context, index string, r io.Reader) (*Result, error) {
	write, err := im.writeFunc(index)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logger := im.logger.With("index", index, "concurrency", im.concurrency)
	logger.Info("import starting")

	jobs := make(chan job)
	var (
		written atomic.Int64
		mu      sync.Mutex
		errs    []*LineError
	)

	var wg sync.WaitGroup
	for i := 0; i < im.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := write(ctx, j.data); err != nil {
					mu.Lock()
					errs = append(errs, &LineError{Line: j.line, Err: err, Msg: err.Error()})
					mu.Unlock()
					continue
				}
				written.Add(1)
			}
		}()
	}

	lines, readErr := im.produce(ctx, r, jobs)
	close(jobs)
	wg.Wait()

	sort.Slice(errs, func(a, b int) bool { return errs[a].Line < errs[b].Line })
	result := &Result{
		Index:    index,
		Lines:    lines,
		Written:  int(written.Load()),
		Failed:   len(errs),
		Errors:   errs,
		Duration: time.Since(start),
	}

	if readErr != nil {
		logger.Warn("import interrupted", "lines", lines, "written", result.Written, "error", readErr)
		return result, readErr
	}

	logger.Info("import complete",
		"lines", lines,
		"written", result.Written,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	return result, nil
}

// produce feeds non-blank lines to jobs until EOF, a read error or cancellation
func (im *Importer) produce(ctx context.Context, r io.Reader, jobs chan<- job) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo, count := 0, 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		lineNo++
		data := scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		count++

		buf := make([]byte, len(data))
		copy(buf, data)

		select {
		case jobs <- job{line: lineNo, data: buf}:
		case <-ctx.Done():
			return count, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return count, goerr.Wrap(domain.ErrInvalidInput, "failed to read import input",
			goerr.V("line", lineNo+1), goerr.V("cause", err.Error()))
	}
	return count, nil
}

type writeFunc func(ctx context.Context, data []byte) error

// writeFunc decodes a line into the document type of index and writes it
func (im *Importer) writeFunc(index string) (writeFunc, error) {
	switch index {
	case domain.IndexPatients:
		return func(ctx context.Context, data []byte) error {
			var p domain.Patient
			if err := decode(data, &p); err != nil {
				return err
			}
			return im.writer.WritePatient(ctx, &p)
		}, nil
	case domain.IndexAppointments:
		return func(ctx context.Context, data []byte) error {
			var a domain.Appointment
			if err := decode(data, &a); err != nil {
				return err
			}
			return im.writer.WriteAppointment(ctx, &a)
		}, nil
	case domain.IndexMedicalCases:
		return func(ctx context.Context, data []byte) error {
			var c domain.MedicalCase
			if err := decode(data, &c); err != nil {
				return err
			}
			return im.writer.WriteMedicalCase(ctx, &c)
		}, nil
	case domain.IndexMedicalRecords:
		return func(ctx context.Context, data []byte) error {
			var rec domain.MedicalRecord
			if err := decode(data, &rec); err != nil {
				return err
			}
			return im.writer.WriteMedicalRecord(ctx, &rec)
		}, nil
	case domain.IndexAgentLogs:
		return func(ctx context.Context, data []byte) error {
			var l domain.AgentLog
			if err := decode(data, &l); err != nil {
				return err
			}
			return im.writer.WriteAgentLog(ctx, &l)
		}, nil
	default:
		return nil, goerr.Wrap(domain.ErrInvalidInput, "index is not registered", goerr.V(domain.IndexKey, index))
	}
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return goerr.Wrap(domain.ErrValidation, "malformed document", goerr.V("cause", err.Error()))
	}
	return nil
}
