// Package reader provides batch readers that partition a dataset into bounded chunks.
package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

const moduleName = "reader"

// DefaultDateLayout is the layout of column4.
const DefaultDateLayout = "2006-01-02"

// MaxColumn1Length is the width of the column1 VARCHAR.
const MaxColumn1Length = 255

// Columns is the required header, in sink order.
var Columns = []string{"column1", "column2", "column3", "column4"}

// Option configures a CSVChunkReader.
type Option func(*CSVChunkReader)

// WithComma sets the field delimiter.
func WithComma(r rune) Option {
	return func(c *CSVChunkReader) { c.csv.Comma = r }
}

// WithDateLayout sets the layout used to parse column4.
func WithDateLayout(layout string) Option {
	return func(c *CSVChunkReader) { c.dateLayout = layout }
}

// CSVChunkReader reads a delimited dataset lazily, one batch at a time.
// It holds at most one batch of rows in memory and cannot be rewound.
// A CSVChunkReader is not safe for concurrent use.
type CSVChunkReader struct {
	src        io.Reader
	csv        *csv.Reader
	batchSize  int
	dateLayout string
	// position of each required column in a row
	index [4]int
	width int

	nextIndex int
	rowsRead  int64
	// terminal is returned by every call once set (io.EOF or a fatal I/O error).
	terminal error
}

// NewCSVChunkReader reads and validates the header of src. The header must name exactly
// column1..column4, in any order.
func NewCSVChunkReader(src io.Reader, batchSize int, opts ...Option) (*CSVChunkReader, error) {
	if batchSize <= 0 {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindConfig, "batch size must be positive, got %d", batchSize)
	}
	c := &CSVChunkReader{
		src:        src,
		csv:        csv.NewReader(src),
		batchSize:  batchSize,
		dateLayout: DefaultDateLayout,
	}
	c.csv.FieldsPerRecord = -1
	for _, opt := range opts {
		opt(c)
	}
	if err := c.readHeader(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CSVChunkReader) readHeader() error {
	header, err := c.csv.Read()
	if errors.Is(err, io.EOF) {
		return exception.NewBatchError(moduleName, exception.KindParse, "dataset is empty, expected a header row", nil)
	}
	if err != nil {
		return exception.NewBatchError(moduleName, exception.KindParse, "failed to read header", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if _, dup := pos[name]; dup {
			return exception.NewBatchErrorf(moduleName, exception.KindParse, "duplicate header column %q", name)
		}
		pos[name] = i
	}
	for i, col := range Columns {
		p, ok := pos[col]
		if !ok {
			return exception.NewBatchErrorf(moduleName, exception.KindParse, "header is missing column %q", col)
		}
		c.index[i] = p
		delete(pos, col)
	}
	if len(pos) > 0 {
		extras := make([]string, 0, len(pos))
		for name := range pos {
			extras = append(extras, name)
		}
		sort.Strings(extras)
		return exception.NewBatchErrorf(moduleName, exception.KindParse, "unexpected header columns %q", extras)
	}
	c.width = len(header)
	return nil
}

// RowsRead returns the number of data rows consumed so far.
func (c *CSVChunkReader) RowsRead() int64 {
	return c.rowsRead
}

// Next returns the next batch, or io.EOF when the dataset is exhausted.
//
// A batch containing any malformed row is returned with Err set to a parse error and no
// Records. Other read failures are fatal: Next returns them now and on every later call.
func (c *CSVChunkReader) Next(ctx context.Context) (model.Batch, error) {
	if c.terminal != nil {
		return model.Batch{}, c.terminal
	}
	if err := ctx.Err(); err != nil {
		return model.Batch{}, exception.NewBatchError(moduleName, exception.KindStopped, "read stopped", err)
	}

	b := model.Batch{Index: c.nextIndex, Records: make([]model.Record, 0, c.batchSize)}
	for b.Rows < c.batchSize {
		fields, err := c.csv.Read()
		if errors.Is(err, io.EOF) {
			c.terminal = io.EOF
			break
		}
		var line int64
		var perr *csv.ParseError
		switch {
		case errors.As(err, &perr):
			line = int64(perr.StartLine)
		case err != nil:
			c.terminal = exception.NewBatchError(moduleName, exception.KindConnection, "failed to read dataset", err)
			return model.Batch{}, c.terminal
		default:
			l, _ := c.csv.FieldPos(0)
			line = int64(l)
		}

		if b.Rows == 0 {
			b.FirstLine = line
		}
		b.Rows++
		c.rowsRead++

		if b.Err != nil {
			continue
		}
		if perr != nil {
			b.Err = exception.NewBatchErrorf(moduleName, exception.KindParse, "line %d: malformed row", line, err)
			continue
		}
		rec, err := c.parse(fields, line)
		if err != nil {
			b.Err = err
			continue
		}
		b.Records = append(b.Records, rec)
	}

	if b.Rows == 0 {
		return model.Batch{}, c.terminal
	}
	if b.Err != nil {
		logger.Warnf("Batch %d (line %d, %d rows) rejected: %v", b.Index, b.FirstLine, b.Rows, b.Err)
		b.Records = nil
	}
	c.nextIndex++
	return b, nil
}

func (c *CSVChunkReader) parse(fields []string, line int64) (model.Record, error) {
	if len(fields) != c.width {
		return model.Record{}, exception.NewBatchErrorf(moduleName, exception.KindParse,
			"line %d: expected %d fields, got %d", line, c.width, len(fields))
	}
	var rec model.Record
	var err error

	rec.Column1 = fields[c.index[0]]
	if n := utf8.RuneCountInString(rec.Column1); n > MaxColumn1Length {
		return rec, exception.NewBatchErrorf(moduleName, exception.KindParse,
			"line %d, column1: %d characters exceeds %d", line, n, MaxColumn1Length)
	}
	raw := strings.TrimSpace(fields[c.index[1]])
	if rec.Column2, err = strconv.ParseInt(raw, 10, 32); err != nil {
		return rec, invalid(line, "column2", "integer", raw, err)
	}
	raw = strings.TrimSpace(fields[c.index[2]])
	if rec.Column3, err = strconv.ParseFloat(raw, 64); err != nil {
		return rec, invalid(line, "column3", "float", raw, err)
	}
	// column3 is a single-precision FLOAT; NaN and infinities have no SQL representation.
	if v := rec.Column3; math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxFloat32 {
		return rec, exception.NewBatchErrorf(moduleName, exception.KindParse,
			"line %d, column3: %q is not a finite FLOAT", line, raw)
	}
	raw = strings.TrimSpace(fields[c.index[3]])
	if rec.Column4, err = time.Parse(c.dateLayout, raw); err != nil {
		return rec, invalid(line, "column4", "date", raw, err)
	}
	return rec, nil
}

func invalid(line int64, column, typ, raw string, err error) error {
	return exception.NewBatchError(moduleName, exception.KindParse,
		fmt.Sprintf("line %d, %s: invalid %s %q", line, column, typ, raw), err)
}

// Close closes the underlying stream if it is an io.Closer.
func (c *CSVChunkReader) Close() error {
	if c.terminal == nil {
		c.terminal = exception.NewBatchError(moduleName, exception.KindInternal, "reader closed", nil)
	}
	if closer, ok := c.src.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
