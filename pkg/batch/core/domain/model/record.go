package model

import "time"

// Record is one parsed row of the sink schema.
type Record struct {
	Column1 string
	Column2 int64
	Column3 float64
	// Column4 is a calendar date; only the year, month and day are meaningful.
	Column4 time.Time
}

// Batch is an ordered, bounded group of records read from a dataset.
//
// A batch rejected by the reader still carries its position and row count so run
// accounting stays exact, but has Err set and no Records; it must never be loaded.
type Batch struct {
	// Index is the zero-based position of the batch in the dataset.
	Index int
	// FirstLine is the 1-based line number of the first row, counting the header as line 1.
	FirstLine int64
	// Rows is the number of data rows the batch covers, including malformed ones.
	Rows    int
	Records []Record
	Err     error
}

// Rejected reports whether the reader refused the batch.
func (b Batch) Rejected() bool {
	return b.Err != nil
}
