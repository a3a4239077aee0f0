package export

import (
	"io"

	"bikedash/internal/engine"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/cockroachdb/errors"
)

// Schema is the Arrow schema of an exported view: a date32 date column
// followed by one float64 column per numeric column.
func Schema(store *engine.ColumnStore) *arrow.Schema {
	names := store.ValueNames()
	fields := make([]arrow.Field, 0, len(names)+1)
	fields = append(fields, arrow.Field{Name: engine.DateColumn, Type: arrow.FixedWidthTypes.Date32})
	for _, name := range names {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64})
	}
	return arrow.NewSchema(fields, nil)
}

// WriteArrow writes the view as a single-record Arrow IPC stream.
func WriteArrow(w io.Writer, view engine.View) error {
	mem := memory.NewGoAllocator()
	schema := Schema(view.Store())

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	dates := b.Field(0).(*array.Date32Builder)
	dates.Reserve(view.Len())
	for i := 0; i < view.Len(); i++ {
		dates.Append(arrow.Date32(view.Day(i)))
	}
	for j, name := range view.Store().ValueNames() {
		vals, err := view.Values(name)
		if err != nil {
			return err
		}
		b.Field(j+1).(*array.Float64Builder).AppendValues(vals, nil)
	}

	rec := b.NewRecord()
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		_ = iw.Close()
		return errors.Wrap(err, "write arrow record")
	}
	if err := iw.Close(); err != nil {
		return errors.Wrap(err, "close arrow stream")
	}
	return nil
}
