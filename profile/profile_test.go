package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadProfile(t *testing.T) {
	path := writeTemp(t, "patch,cell,baseline,c0,c1,c2\n"+
		"1,0,10,2,3,0\n"+
		"1,5,-7,0,1,0.25\n"+
		"3,0,100,0,0,0\n")
	p, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, 2, p.NumPatches())
	assert.Equal(t, []int{1, 3}, p.PatchIDs())

	pp, ok := p.Patch(1)
	require.True(t, ok)
	assert.Equal(t, 2, pp.NumCells())
	baseline, c0, c1, c2, ok := pp.Params(0)
	require.True(t, ok)
	assert.Equal(t, int32(10), baseline)
	assert.Equal(t, 2.0, c0)
	assert.Equal(t, 3.0, c1)
	assert.Equal(t, 0.0, c2)

	baseline, _, c1, c2, ok = pp.Params(5)
	require.True(t, ok)
	assert.Equal(t, int32(-7), baseline)
	assert.Equal(t, 1.0, c1)
	assert.Equal(t, 0.25, c2)

	_, ok = p.Patch(2)
	assert.False(t, ok)
}

func TestReadProfileToleratesTrailingNewlines(t *testing.T) {
	path := writeTemp(t, "patch,cell,baseline,c0,c1,c2\n1,0,5,0,1,0\n\n\n")
	p, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 1, p.NumPatches())
}

func TestReadProfileDuplicateOverwrites(t *testing.T) {
	path := writeTemp(t, "patch,cell,baseline,c0,c1,c2\n"+
		"1,0,10,0,1,0\n"+
		"1,0,20,1,2,3\n")
	p, err := Read(path)
	require.NoError(t, err)
	pp, _ := p.Patch(1)
	assert.Equal(t, 1, pp.NumCells())
	baseline, c0, c1, c2, _ := pp.Params(0)
	assert.Equal(t, int32(20), baseline)
	assert.Equal(t, 1.0, c0)
	assert.Equal(t, 2.0, c1)
	assert.Equal(t, 3.0, c2)
}

func TestReadProfileRejectsUnknownHeader(t *testing.T) {
	path := writeTemp(t, "patch,cell,zero,c0,c1,c2\n1,0,5,0,1,0\n")
	_, err := Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
	assert.Contains(t, err.Error(), "zero")
}

func TestReadProfileRejectsBadRows(t *testing.T) {
	for _, tc := range []struct {
		name string
		row  string
	}{
		{"zero patch", "0,0,5,0,1,0"},
		{"negative patch", "-1,0,5,0,1,0"},
		{"negative cell", "1,-2,5,0,1,0"},
		{"non-integer baseline", "1,0,x,0,1,0"},
		{"non-float coefficient", "1,0,5,0,huh,0"},
		{"short row", "1,0,5,0,1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTemp(t, "patch,cell,baseline,c0,c1,c2\n"+tc.row+"\n")
			_, err := Read(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestTareIdempotent(t *testing.T) {
	p := New()
	p.GetOrCreate(1).Set(0, 10, 2, 3, 4)
	p.GetOrCreate(2).Set(7, -5, 1, 1, 1)

	p.Tare()
	pp, _ := p.Patch(1)
	baseline, c0, c1, c2, _ := pp.Params(0)
	assert.Equal(t, int32(0), baseline)
	assert.Equal(t, 2.0, c0)
	assert.Equal(t, 3.0, c1)
	assert.Equal(t, 4.0, c2)

	p.Tare()
	baseline, c0b, c1b, c2b, _ := pp.Params(0)
	assert.Equal(t, int32(0), baseline)
	assert.Equal(t, c0, c0b)
	assert.Equal(t, c1, c1b)
	assert.Equal(t, c2, c2b)
}

func TestGetOrCreateGrowsByDoubling(t *testing.T) {
	p := New()
	pp := p.GetOrCreate(97)
	assert.Equal(t, 97, pp.ID())
	again := p.GetOrCreate(97)
	assert.Same(t, pp, again)
	assert.Equal(t, 1, p.NumPatches())

	pp.SetBaseline(63, 11)
	assert.Equal(t, int32(11), pp.Baseline(63))
	assert.Equal(t, int32(0), pp.Baseline(62))
	assert.False(t, pp.Has(62))
}

func TestSetBaselineCreatesEntries(t *testing.T) {
	p := New()
	p.SetBaseline(2, 3, 42)
	pp, ok := p.Patch(2)
	require.True(t, ok)
	baseline, c0, c1, c2, ok := pp.Params(3)
	require.True(t, ok)
	assert.Equal(t, int32(42), baseline)
	assert.Equal(t, 0.0, c0)
	assert.Equal(t, 0.0, c1)
	assert.Equal(t, 0.0, c2)
}
