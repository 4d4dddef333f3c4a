package reader_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bulkload/pkg/batch/component/step/reader"
	"github.com/tigerroll/bulkload/pkg/batch/core/domain/model"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
)

func dataset(n int) string {
	var sb strings.Builder
	sb.WriteString("column1,column2,column3,column4\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "name-%d,%d,%d.5,2024-01-%02d\n", i, i, i, i%28+1)
	}
	return sb.String()
}

func readAll(t *testing.T, r *reader.CSVChunkReader) []model.Batch {
	t.Helper()
	var batches []model.Batch
	for {
		b, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return batches
		}
		require.NoError(t, err)
		batches = append(batches, b)
	}
}

func TestCSVChunkReader_ProducesCeilNOverBBatches(t *testing.T) {
	for _, tc := range []struct{ n, b int }{{0, 3}, {1, 3}, {3, 3}, {7, 3}, {10, 1}, {5, 100}} {
		t.Run(fmt.Sprintf("N=%d/B=%d", tc.n, tc.b), func(t *testing.T) {
			r, err := reader.NewCSVChunkReader(strings.NewReader(dataset(tc.n)), tc.b)
			require.NoError(t, err)
			batches := readAll(t, r)

			assert.Len(t, batches, (tc.n+tc.b-1)/tc.b)
			seen := 0
			for i, b := range batches {
				assert.Equal(t, i, b.Index)
				assert.False(t, b.Rejected())
				assert.LessOrEqual(t, len(b.Records), tc.b)
				assert.Equal(t, int64(seen+2), b.FirstLine)
				for _, rec := range b.Records {
					assert.Equal(t, fmt.Sprintf("name-%d", seen), rec.Column1)
					assert.Equal(t, int64(seen), rec.Column2)
					seen++
				}
			}
			assert.Equal(t, tc.n, seen)
			assert.Equal(t, int64(tc.n), r.RowsRead())
		})
	}
}

func TestCSVChunkReader_ParsesTypes(t *testing.T) {
	src := "column4,column3,column2,column1\n2023-12-31,3.25,42,\"hello, world\"\n"
	r, err := reader.NewCSVChunkReader(strings.NewReader(src), 10)
	require.NoError(t, err)

	b, err := r.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Records, 1)
	assert.Equal(t, model.Record{
		Column1: "hello, world",
		Column2: 42,
		Column3: 3.25,
		Column4: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}, b.Records[0])
}

func TestCSVChunkReader_MalformedRowRejectsWholeBatch(t *testing.T) {
	src := strings.Join([]string{
		"column1,column2,column3,column4",
		"a,1,1.0,2024-01-01",
		"b,1,1.0,2024-01-02",
		"c,not-a-number,1.0,2024-01-03",
		"d,1,1.0,2024-01-04",
		"e,1,1.0,2024-01-05",
	}, "\n")
	r, err := reader.NewCSVChunkReader(strings.NewReader(src), 2)
	require.NoError(t, err)
	batches := readAll(t, r)
	require.Len(t, batches, 3)

	assert.False(t, batches[0].Rejected())
	assert.True(t, batches[1].Rejected())
	assert.Empty(t, batches[1].Records)
	assert.Equal(t, 2, batches[1].Rows)
	assert.Equal(t, int64(4), batches[1].FirstLine)
	assert.True(t, exception.IsKind(batches[1].Err, exception.KindParse))
	assert.ErrorContains(t, batches[1].Err, `line 4, column2: invalid integer "not-a-number"`)
	assert.False(t, batches[2].Rejected())
	assert.Equal(t, int64(5), r.RowsRead())
}

func TestCSVChunkReader_RowDefects(t *testing.T) {
	cases := map[string]string{
		"field count": "a,1,1.0\n",
		"float":       "a,1,x,2024-01-01\n",
		"nan":         "a,1,NaN,2024-01-01\n",
		"inf":         "a,1,Inf,2024-01-01\n",
		"-infinity":   "a,1,-Infinity,2024-01-01\n",
		"float range": "a,1,1e300,2024-01-01\n",
		"date":        "a,1,1.0,01/02/2024\n",
		"int32 range": "a,4294967296,1.0,2024-01-01\n",
		"bare quote":  "a\"b,1,1.0,2024-01-01\n",
		"too long":    strings.Repeat("x", reader.MaxColumn1Length+1) + ",1,1.0,2024-01-01\n",
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			src := "column1,column2,column3,column4\n" + row + "ok,1,1.0,2024-01-01\n"
			r, err := reader.NewCSVChunkReader(strings.NewReader(src), 1)
			require.NoError(t, err)
			batches := readAll(t, r)
			require.Len(t, batches, 2)
			assert.True(t, exception.IsKind(batches[0].Err, exception.KindParse), batches[0].Err)
			assert.False(t, batches[1].Rejected())
		})
	}
}

func TestCSVChunkReader_Header(t *testing.T) {
	for name, src := range map[string]string{
		"empty":     "",
		"missing":   "column1,column2,column3\n",
		"extra":     "column1,column2,column3,column4,column5\n",
		"duplicate": "column1,column1,column2,column3,column4\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := reader.NewCSVChunkReader(strings.NewReader(src), 10)
			assert.True(t, exception.IsKind(err, exception.KindParse), err)
		})
	}

	_, err := reader.NewCSVChunkReader(strings.NewReader("\ufeffColumn1, column2,column3,column4\n"), 10)
	assert.NoError(t, err)

	_, err = reader.NewCSVChunkReader(strings.NewReader(dataset(1)), 0)
	assert.True(t, exception.IsKind(err, exception.KindConfig))
}

func TestCSVChunkReader_Options(t *testing.T) {
	src := "column1;column2;column3;column4\na;1;2.5;31.12.2023\n"
	r, err := reader.NewCSVChunkReader(strings.NewReader(src), 10, reader.WithComma(';'), reader.WithDateLayout("02.01.2006"))
	require.NoError(t, err)
	b, err := r.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Records, 1)
	assert.Equal(t, 2023, b.Records[0].Column4.Year())
}

type failingReader struct {
	data io.Reader
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.data.Read(p)
	if errors.Is(err, io.EOF) {
		return n, f.err
	}
	return n, err
}

func TestCSVChunkReader_IOErrorIsTerminal(t *testing.T) {
	boom := errors.New("connection reset")
	src := &failingReader{data: strings.NewReader("column1,column2,column3,column4\na,1,1.0,2024-01-01\n"), err: boom}
	r, err := reader.NewCSVChunkReader(src, 10)
	require.NoError(t, err)

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, exception.IsKind(err, exception.KindConnection))
	_, again := r.Next(context.Background())
	assert.Equal(t, err, again)
}

func TestCSVChunkReader_EOFIsSticky(t *testing.T) {
	r, err := reader.NewCSVChunkReader(strings.NewReader(dataset(1)), 10)
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = r.Next(context.Background())
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestCSVChunkReader_StopsOnCancelledContext(t *testing.T) {
	r, err := reader.NewCSVChunkReader(strings.NewReader(dataset(5)), 2)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Next(ctx)
	assert.True(t, exception.IsKind(err, exception.KindStopped))
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestCSVChunkReader_CloseClosesSource(t *testing.T) {
	src := &closeTracker{Reader: strings.NewReader(dataset(3))}
	r, err := reader.NewCSVChunkReader(src, 2)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.True(t, src.closed)
	_, err = r.Next(context.Background())
	assert.Error(t, err)
}
