package engine

import (
	"testing"

	"bikedash/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesOptions(t *testing.T) {
	store := testStore(t, 31)

	_, err := New(store, WithResponse("nope"))
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = New(store, WithDefaultAxes("temp", "nope"))
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = New(store, WithBins(0))
	assert.Error(t, err)

	eng, err := New(store, WithResponse("registered"), WithDefaultAxes("atemp", "casual"), WithBins(10))
	require.NoError(t, err)
	assert.Equal(t, "registered", eng.Response())
	sel := eng.DefaultSelection()
	assert.Equal(t, "atemp", sel.X)
	assert.Equal(t, "casual", sel.Y)
}

func TestDefaultSelection(t *testing.T) {
	store := testStore(t, 731)
	eng, err := New(store)
	require.NoError(t, err)

	sel := eng.DefaultSelection()
	assert.Equal(t, models.Selection{
		X:        "temp",
		Y:        "cnt",
		Start:    store.Start(),
		End:      store.End(),
		PlotType: models.PlotScatter,
	}, sel)

	info := eng.Info()
	assert.Equal(t, 731, info.Rows)
	assert.Equal(t, "cnt", info.Response)
	require.NotEmpty(t, info.Columns)
	assert.Equal(t, DateColumn, info.Columns[0].Name)
	assert.Equal(t, models.KindTemporal, info.Columns[0].Kind)
}

func TestComputeIsPure(t *testing.T) {
	store := testStore(t, 731)
	eng, err := New(store)
	require.NoError(t, err)

	sel := eng.DefaultSelection()
	sel.Start = day(t, "2011-01-01")
	sel.End = day(t, "2011-01-31")

	first, err := eng.Compute(sel)
	require.NoError(t, err)
	second, err := eng.Compute(sel)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 31, first.Rows)
	assert.Equal(t, "cnt", first.Summary.Column)
	assert.Equal(t, 31, first.Summary.Count)
	assert.Equal(t, "temp", first.Chart.X.Field)
	assert.Equal(t, "cnt", first.Chart.Y.Field)
}

func TestComputeErrors(t *testing.T) {
	eng, err := New(testStore(t, 31))
	require.NoError(t, err)

	sel := eng.DefaultSelection()
	sel.PlotType = "pie"
	_, err = eng.Compute(sel)
	assert.ErrorIs(t, err, ErrInvalidPlotType)

	assert.NoError(t, eng.CheckColumn(DateColumn))
	assert.ErrorIs(t, eng.CheckColumn("nope"), ErrUnknownColumn)
}
