// Package ingest streams gzip-compressed newline-delimited JSON event logs
// into a sketch registry, one line at a time.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/yourusername/event-cardinality/internal/config"
	"github.com/yourusername/event-cardinality/internal/guardrail"
	"github.com/yourusername/event-cardinality/internal/metrics"
)

const (
	defaultReadBufferSize = 64 * 1024
	defaultMaxLineBytes   = 1 << 20
)

var (
	// ErrIngestIO marks failures to open, decompress or read an input.
	ErrIngestIO = errors.New("ingestion i/o error")
	// ErrLineTooLong is attached to lines skipped for exceeding the line cap.
	ErrLineTooLong = errors.New("line exceeds maximum length")
)

// IOError reports which stage of an ingestion run failed.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIngestIO, e.Err}
}

type SkipReason string

const (
	SkipMalformed SkipReason = "malformed"
	SkipGuardrail SkipReason = "guardrail"
	SkipOversized SkipReason = "oversized"
)

// LineOutcome is the result of processing a single line.
type LineOutcome struct {
	Blank   bool
	Skipped bool
	Reason  SkipReason
	Err     error
	Tracked int
}

// Result aggregates the outcomes of one ingestion run. Lines counts every
// line read, skipped ones included.
type Result struct {
	Lines       int64
	Tracked     int64
	Skipped     int64
	SkipReasons map[SkipReason]int64
}

func (r *Result) record(o LineOutcome) {
	r.Lines++
	r.Tracked += int64(o.Tracked)
	if o.Skipped {
		r.Skipped++
		if r.SkipReasons == nil {
			r.SkipReasons = make(map[SkipReason]int64)
		}
		r.SkipReasons[o.Reason]++
	}
}

// Tracker receives extracted values. *sketch.Registry implements it.
type Tracker interface {
	Track(counter, value string) error
	AddFrequency(key string)
	Has(counter string) bool
}

// Binding routes the string at a dotted JSON path to a counter.
type Binding struct {
	Counter string
	Field   string
}

type Options struct {
	Bindings       []Binding
	FrequencyField string
	Guardrail      config.GuardrailConfig
	ReadBufferSize int
	// MaxLineBytes caps one event line. Zero selects the default of 1MiB.
	MaxLineBytes int
}

// OptionsFromConfig derives pipeline options from the counter bindings and
// ingest sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Guardrail:      cfg.Guardrail,
		ReadBufferSize: cfg.Ingest.ReadBufferSize,
		MaxLineBytes:   cfg.Ingest.MaxLineBytes,
	}
	for _, c := range cfg.Counters {
		if c.Field != "" {
			opts.Bindings = append(opts.Bindings, Binding{Counter: c.Name, Field: c.Field})
		}
	}
	if cfg.Frequency.Width > 0 {
		opts.FrequencyField = cfg.Frequency.Field
	}
	return opts
}

type binding struct {
	counter string
	path    []string
}

// Pipeline extracts bound fields from events and forwards them to a Tracker.
// A Pipeline holds no per-run state and may be shared by several sources.
type Pipeline struct {
	tracker   Tracker
	bindings  []binding
	frequency []string
	guard     *guardrail.EventGuardrail
	bufSize   int
	maxLine   int
}

func NewPipeline(tracker Tracker, opts Options) (*Pipeline, error) {
	p := &Pipeline{
		tracker: tracker,
		guard:   guardrail.NewEventGuardrail(opts.Guardrail),
		bufSize: opts.ReadBufferSize,
		maxLine: opts.MaxLineBytes,
	}
	if p.bufSize <= 0 {
		p.bufSize = defaultReadBufferSize
	}
	if p.maxLine <= 0 {
		p.maxLine = defaultMaxLineBytes
	}

	for _, b := range opts.Bindings {
		if !tracker.Has(b.Counter) {
			return nil, fmt.Errorf("binding %s: unknown counter %q", b.Field, b.Counter)
		}
		path, err := splitPath(b.Field)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", b.Counter, err)
		}
		p.bindings = append(p.bindings, binding{counter: b.Counter, path: path})
	}

	if opts.FrequencyField != "" {
		path, err := splitPath(opts.FrequencyField)
		if err != nil {
			return nil, fmt.Errorf("frequency field: %w", err)
		}
		p.frequency = path
	}

	return p, nil
}

func splitPath(field string) ([]string, error) {
	path := strings.Split(field, ".")
	for _, part := range path {
		if part == "" {
			return nil, fmt.Errorf("invalid field path %q", field)
		}
	}
	return path, nil
}

// Ingest decompresses and processes the gzip file at path. The returned
// Result covers every line read, including when an error is returned.
func (p *Pipeline) Ingest(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		metrics.IngestFailuresTotal.Inc()
		return Result{}, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	zr, err := gzip.NewReader(bufio.NewReaderSize(f, p.bufSize))
	if err != nil {
		metrics.IngestFailuresTotal.Inc()
		return Result{}, &IOError{Op: "decompress", Path: path, Err: err}
	}
	defer zr.Close()

	res, err := p.IngestReader(ctx, zr)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			log.Printf("Ingestion of %s cancelled after %d lines", path, res.Lines)
			return res, err
		}
		metrics.IngestFailuresTotal.Inc()
		return res, &IOError{Op: "read", Path: path, Err: err}
	}

	log.Printf("Ingested %s: %d lines, %d values tracked, %d skipped", path, res.Lines, res.Tracked, res.Skipped)
	return res, nil
}

// IngestReader processes newline-delimited JSON from an uncompressed
// stream. Cancellation is checked between lines. Memory stays bounded by
// the line cap: longer lines are read through and skipped.
func (p *Pipeline) IngestReader(ctx context.Context, r io.Reader) (Result, error) {
	var res Result
	defer observe("file", &res)

	br := bufio.NewReaderSize(r, p.bufSize)
	var buf []byte
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		line, oversized, err := readLine(br, buf, p.maxLine)
		buf = line[:0]
		switch {
		case oversized:
			res.record(LineOutcome{Skipped: true, Reason: SkipOversized, Err: ErrLineTooLong})
		case len(line) > 0:
			res.record(p.ProcessLine(line))
		}
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, err
		}
	}
}

// readLine assembles the next line from buffer-sized fragments into buf.
// Once a line outgrows limit (plus room for a CRLF terminator) the rest of
// it is discarded and oversized is set.
func readLine(br *bufio.Reader, buf []byte, limit int) (line []byte, oversized bool, err error) {
	line = buf[:0]
	for {
		var frag []byte
		frag, err = br.ReadSlice('\n')
		if !oversized {
			if len(line)+len(frag) > limit+2 {
				oversized = true
				line = line[:0]
			} else {
				line = append(line, frag...)
			}
		}
		if err != bufio.ErrBufferFull {
			return line, oversized, err
		}
	}
}

// ProcessLine decodes one event and forwards its bound fields. Malformed
// and oversized lines are reported as skipped, never as errors.
func (p *Pipeline) ProcessLine(line []byte) LineOutcome {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return LineOutcome{Blank: true}
	}
	if len(line) > p.maxLine {
		return LineOutcome{Skipped: true, Reason: SkipOversized, Err: ErrLineTooLong}
	}

	var event interface{}
	if err := json.Unmarshal(line, &event); err != nil {
		return LineOutcome{Skipped: true, Reason: SkipMalformed, Err: err}
	}
	if err := p.guard.Validate(event); err != nil {
		return LineOutcome{Skipped: true, Reason: SkipGuardrail, Err: err}
	}

	var out LineOutcome
	for _, b := range p.bindings {
		value, ok := lookupString(event, b.path)
		if !ok {
			continue
		}
		if err := p.tracker.Track(b.counter, value); err != nil {
			out.Err = err
			continue
		}
		out.Tracked++
	}

	if p.frequency != nil {
		if key, ok := lookupString(event, p.frequency); ok {
			p.tracker.AddFrequency(key)
		}
	}

	return out
}

// lookupString walks nested objects along path. Anything other than a
// non-empty string at the end counts as absent.
func lookupString(v interface{}, path []string) (string, bool) {
	for _, key := range path {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return "", false
		}
		if v, ok = obj[key]; !ok {
			return "", false
		}
	}

	s, ok := v.(string)
	return s, ok && s != ""
}

func observe(source string, res *Result) {
	metrics.LinesIngestedTotal.WithLabelValues(source).Add(float64(res.Lines))
	for reason, n := range res.SkipReasons {
		metrics.LinesSkippedTotal.WithLabelValues(string(reason)).Add(float64(n))
	}
}

// Observe publishes a single line outcome for a streaming source.
func Observe(source string, o LineOutcome) {
	var res Result
	res.record(o)
	observe(source, &res)
}
