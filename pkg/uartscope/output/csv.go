package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/norasector/uartscope/pkg/frame"
)

var ErrColumnNotFound = errors.New("column not found")

const (
	ColumnIndex     = "index"
	ColumnTimestamp = "timestamp_s"
)

// CSV writes one row per sample: index, elapsed seconds, then every field.
type CSV struct {
	w      *csv.Writer
	closer io.Closer
	fields []string
	row    []string
}

// NewCSV writes the header row to w.
func NewCSV(w io.Writer, fields []string) (*CSV, error) {
	c := &CSV{
		w:      csv.NewWriter(w),
		fields: append([]string(nil), fields...),
		row:    make([]string, len(fields)+2),
	}
	header := append([]string{ColumnIndex, ColumnTimestamp}, fields...)
	if err := c.w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return c, nil
}

// CreateCSV creates (or truncates) path and writes the header row.
func CreateCSV(path string, fields []string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	c, err := NewCSV(f, fields)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

func (c *CSV) Write(rec frame.SampleRecord) error {
	c.row[0] = strconv.FormatUint(rec.Index, 10)
	c.row[1] = strconv.FormatFloat(rec.ElapsedSeconds(), 'f', 6, 64)
	for i, name := range c.fields {
		if v, ok := rec.Fields.Get(name); ok {
			c.row[i+2] = strconv.FormatUint(v, 10)
		} else {
			c.row[i+2] = ""
		}
	}
	if err := c.w.Write(c.row); err != nil {
		return fmt.Errorf("write csv row %d: %w", rec.Index, err)
	}
	return nil
}

func (c *CSV) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the underlying file, if CreateCSV opened one.
func (c *CSV) Close() error {
	err := c.Flush()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Table is a numeric CSV file loaded for re-plotting.
type Table struct {
	Header []string
	Rows   [][]float64
}

// ReadTable parses a CSV with a header row. Empty cells read as NaN.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	t := &Table{Header: header}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]float64, len(header))
		for i := range row {
			row[i] = math.NaN()
			if i >= len(rec) || rec[i] == "" {
				continue
			}
			v, err := strconv.ParseFloat(rec[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// LoadTable reads a CSV file from disk.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f)
}

// Column returns the index of the named column.
func (t *Table) Column(name string) (int, error) {
	for i, h := range t.Header {
		if h == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}
