package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ParseFailure records one unparsable line.
type ParseFailure struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Parser streams invoice records out of a line-delimited batch result
// source. It reads one line at a time regardless of source size, accepts
// both LF and CRLF endings, skips blank lines, and isolates per-line
// failures: a malformed line is logged and skipped, never aborting the rest
// of the stream. The sequence is non-restartable.
type Parser struct {
	r        *bufio.Reader
	validate *validator.Validate
	line     int
	failures []ParseFailure
	err      error
	done     bool
}

// NewParser wraps a batch result source.
func NewParser(r io.Reader) *Parser {
	return &Parser{
		r:        bufio.NewReader(r),
		validate: validator.New(),
	}
}

// Next returns the next successfully parsed record. ok is false once the
// source is exhausted or a read error occurred; check Err afterwards.
func (p *Parser) Next() (InvoiceRecord, bool) {
	for !p.done {
		raw, readErr := p.r.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			p.err = fmt.Errorf("ingest: read source: %w", readErr)
			p.done = true
			return InvoiceRecord{}, false
		}
		if readErr == io.EOF {
			p.done = true
		}

		line := strings.TrimRight(raw, "\r\n")
		if raw != "" {
			p.line++
		}
		if line == "" {
			continue
		}

		record, err := p.parseLine(line)
		if err != nil {
			p.failures = append(p.failures, ParseFailure{Line: p.line, Reason: err.Error()})
			continue
		}
		return record, true
	}
	return InvoiceRecord{}, false
}

// parseLine performs the two-layer decode: the outer envelope, then the
// JSON-encoded response payload, then schema validation.
func (p *Parser) parseLine(line string) (InvoiceRecord, error) {
	var env lineEnvelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return InvoiceRecord{}, fmt.Errorf("envelope: %w", err)
	}
	if env.Response == "" {
		return InvoiceRecord{}, fmt.Errorf("envelope: empty response payload")
	}

	var record InvoiceRecord
	if err := json.Unmarshal([]byte(env.Response), &record); err != nil {
		return InvoiceRecord{}, fmt.Errorf("payload: %w", err)
	}
	if err := p.validate.Struct(record); err != nil {
		return InvoiceRecord{}, fmt.Errorf("schema: %w", err)
	}
	return record, nil
}

// Failures returns the per-line failure log accumulated so far.
func (p *Parser) Failures() []ParseFailure {
	return p.failures
}

// Err reports a systemic read failure, as opposed to per-line parse errors.
func (p *Parser) Err() error {
	return p.err
}
