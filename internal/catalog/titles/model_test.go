package titles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, copies int) *Title {
	t.Helper()
	ti, err := New("978-0-441-17271-9", "Dune", "Frank Herbert", copies)
	require.NoError(t, err)
	return ti
}

func TestDecrementToZeroMarksBorrowed(t *testing.T) {
	ti := mustNew(t, 1)
	assert.Equal(t, StatusAvailable, ti.Status())

	require.NoError(t, ti.Decrement())
	assert.Equal(t, 0, ti.Available())
	assert.Equal(t, StatusBorrowed, ti.Status())
	assert.False(t, ti.IsAvailable())
}

func TestDecrementOutOfStockLeavesStateUnchanged(t *testing.T) {
	ti := mustNew(t, 0)
	before := *ti

	err := ti.Decrement()
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, before, *ti)
}

func TestIncrementOverCapacity(t *testing.T) {
	ti := mustNew(t, 2)
	assert.ErrorIs(t, ti.Increment(), ErrOverCapacity)
	assert.Equal(t, 2, ti.Available())

	require.NoError(t, ti.Decrement())
	require.NoError(t, ti.Decrement())
	require.NoError(t, ti.Increment())
	assert.Equal(t, 1, ti.Available())
	assert.Equal(t, StatusAvailable, ti.Status())
}

func TestCountersStayInRange(t *testing.T) {
	ti := mustNew(t, 3)
	ops := []func() error{ti.Decrement, ti.Decrement, ti.Increment, ti.Decrement, ti.Decrement, ti.Decrement, ti.Increment, ti.Increment, ti.Increment, ti.Increment}
	for _, op := range ops {
		_ = op()
		assert.GreaterOrEqual(t, ti.Available(), 0)
		assert.LessOrEqual(t, ti.Available(), ti.Total())
		assert.Equal(t, ti.Available() > 0, ti.Status() == StatusAvailable)
	}
}

func TestMaintenanceIsSticky(t *testing.T) {
	ti := mustNew(t, 2)
	ti.SetMaintenance(true)
	assert.False(t, ti.IsAvailable())

	require.NoError(t, ti.Decrement())
	require.NoError(t, ti.Increment())
	assert.Equal(t, StatusMaintenance, ti.Status())

	ti.SetMaintenance(false)
	assert.Equal(t, StatusAvailable, ti.Status())
	assert.True(t, ti.IsAvailable())
}

func TestAdjustCopies(t *testing.T) {
	ti := mustNew(t, 2)
	require.NoError(t, ti.Decrement())

	require.NoError(t, ti.AdjustCopies(3))
	assert.Equal(t, 5, ti.Total())
	assert.Equal(t, 4, ti.Available())

	assert.Error(t, ti.AdjustCopies(-5))
	assert.Error(t, ti.AdjustCopies(0))

	require.NoError(t, ti.AdjustCopies(-4))
	assert.Equal(t, 1, ti.Total())
	assert.Equal(t, 0, ti.Available())
	assert.Equal(t, StatusBorrowed, ti.Status())
}

func TestRestoreRejectsCorruptCounters(t *testing.T) {
	_, err := Restore(Title{ID: 1}, 1, 2, StatusAvailable)
	assert.Error(t, err)
	_, err = Restore(Title{ID: 1}, 1, 1, Status("LOST"))
	assert.Error(t, err)

	ti, err := Restore(Title{ID: 1, Title: "Dune"}, 3, 1, StatusReserved)
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, ti.Status())
	assert.True(t, ti.IsAvailable())
}

func TestNewValidation(t *testing.T) {
	_, err := New("123", "Dune", "Frank Herbert", 1)
	assert.Error(t, err)
	_, err = New("9780441172719", " ", "Frank Herbert", 1)
	assert.Error(t, err)
	_, err = New("9780441172719", "Dune", "Frank Herbert", -1)
	assert.Error(t, err)
}

func TestNormalizeISBN(t *testing.T) {
	cases := map[string]string{
		"978-0-441-17271-9": "9780441172719",
		"９７８０４４１１７２７１９": "9780441172719",
		"0-8044-2957-x":     "080442957X",
	}
	for in, want := range cases {
		got, err := NormalizeISBN(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "97804411727", "X804429570", "97804411727XX"} {
		_, err := NormalizeISBN(bad)
		assert.Error(t, err, bad)
	}
}
