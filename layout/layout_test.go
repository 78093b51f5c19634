package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layout.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadLayout(t *testing.T) {
	lo, err := Read(writeTemp(t, `2
1,2
0,-0.5,0.5
1,0.5,0.5
4,1
3,1.25,-1.25
`))
	require.NoError(t, err)
	assert.Equal(t, 2, lo.NumPatches())
	assert.Equal(t, 3, lo.TotalCells())
	assert.Equal(t, 4, lo.MaxPatchID())

	pl, ok := lo.Patch(1)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, pl.CellID)
	assert.Equal(t, []float64{-0.5, 0.5}, pl.X)

	pl, ok = lo.Patch(4)
	require.True(t, ok)
	assert.Equal(t, []int{3}, pl.CellID)
	i, ok := pl.CellIndex(3)
	require.True(t, ok)
	assert.Equal(t, 0, i)
	_, ok = pl.CellIndex(0)
	assert.False(t, ok)

	_, ok = lo.Patch(2)
	assert.False(t, ok)
	_, ok = lo.Patch(99)
	assert.False(t, ok)

	// Each patch carries its own bounding rectangle in its local frame;
	// one patch's extent never doctors another's.
	pl, _ = lo.Patch(1)
	assert.Equal(t, Rect{-0.5, 0.5, 0.5, 0.5}, pl.Bounds())
	pl, _ = lo.Patch(4)
	assert.Equal(t, Rect{1.25, 1.25, -1.25, -1.25}, pl.Bounds())
}

func TestReadLayoutSpaceSeparated(t *testing.T) {
	lo, err := Read(writeTemp(t, "1\n5 2\n0 -1.5 0\n1 1.5 0\n"))
	require.NoError(t, err)
	pl, ok := lo.Patch(5)
	require.True(t, ok)
	assert.Equal(t, 2, pl.NumCells())
	assert.Equal(t, 1.5, pl.X[1])
}

func TestReadLayoutErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
	}{
		{"bad count", "x\n"},
		{"zero patch id", "1\n0,1\n0,0,0\n"},
		{"bad coordinate", "1\n1,1\n0,zero,0\n"},
		{"truncated patch", "1\n1,2\n0,0,0\n"},
		{"missing patch", "2\n1,1\n0,0,0\n"},
		{"extra tokens", "1\n1,1,9\n0,0,0\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(writeTemp(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestTrivialLayout(t *testing.T) {
	lo := Trivial(2, 16)
	assert.Equal(t, 2, lo.NumPatches())
	assert.Equal(t, 32, lo.TotalCells())

	pl, ok := lo.Patch(1)
	require.True(t, ok)
	assert.Equal(t, 16, pl.NumCells())
	assert.Equal(t, -1.5, pl.X[0])
	assert.Equal(t, 1.5, pl.X[3])
	assert.Equal(t, -1.5, pl.Y[0])
	assert.Equal(t, 1.5, pl.Y[15])

	b := pl.Bounds()
	assert.Equal(t, Rect{-1.5, 1.5, -1.5, 1.5}, b)
	assert.Equal(t, 1.5, b.ClampX(7.0))
	assert.Equal(t, -1.5, b.ClampY(-99))
	assert.Equal(t, 0.25, b.ClampX(0.25))

	pl2, ok := lo.Patch(2)
	require.True(t, ok)
	assert.Equal(t, b, pl2.Bounds())
}
