package export

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/adminraster-go/internal/admin"
	"github.com/wegman-software/adminraster-go/internal/colorcode"
)

// DefaultBatchSize is the number of rows buffered per record batch
const DefaultBatchSize = 4096

// Schema is the column layout of a region export
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "color", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "disputed", Type: arrow.FixedWidthTypes.Boolean, Nullable: false},
	{Name: "admin0", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "sov", Type: arrow.BinaryTypes.String, Nullable: false},
}, nil)

// RegionWriter writes admin1 regions with their raster colour to Parquet
type RegionWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
	total     int
}

// NewRegionWriter creates a new region Parquet writer
func NewRegionWriter(path string, batchSize int) (*RegionWriter, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(Schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &RegionWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, Schema),
		batchSize: batchSize,
	}, nil
}

// Write appends one region. Ids outside the colour range are rejected.
func (w *RegionWriter) Write(rec admin.Record) error {
	hex, err := colorcode.Hex(rec.ID)
	if err != nil {
		return fmt.Errorf("region %d: %w", rec.ID, err)
	}

	w.builder.Field(0).(*array.Int64Builder).Append(int64(rec.ID))
	w.builder.Field(1).(*array.StringBuilder).Append(rec.Admin1)
	w.builder.Field(2).(*array.StringBuilder).Append(hex)
	w.builder.Field(3).(*array.BooleanBuilder).Append(rec.Disputed)
	w.builder.Field(4).(*array.StringBuilder).Append(rec.Admin0)
	w.builder.Field(5).(*array.StringBuilder).Append(rec.Sov)

	w.count++
	w.total++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Count returns the number of rows written so far
func (w *RegionWriter) Count() int {
	return w.total
}

func (w *RegionWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes buffered rows and closes the file
func (w *RegionWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		return err
	}
	// FileWriter.Close also closes the underlying file
	return w.writer.Close()
}

// WriteRegions writes records to a new Parquet file at path
func WriteRegions(path string, records []admin.Record) error {
	w, err := NewRegionWriter(path, DefaultBatchSize)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", path, err)
	}
	return nil
}
