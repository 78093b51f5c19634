package csvlog

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stampRE = regexp.MustCompile(`^\d+\.\d{9}$`)

func TestSampleLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")
	l, err := CreateSample(path, []string{"patch1_cell0", "patch1_cell1"})
	require.NoError(t, err)

	when := time.Unix(1700000000, 42)
	require.NoError(t, l.WriteFrame(when, []float64{1.5, -2}))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "time,patch1_cell0,patch1_cell1", lines[0])
	assert.Equal(t, "1700000000.000000042,1.5,-2", lines[1])
}

func TestDebugLogEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.csv")
	l, err := CreateDebug(path)
	require.NoError(t, err)

	require.NoError(t, l.Rewind(117))
	require.NoError(t, l.Misalign(3))
	require.NoError(t, l.Parse(2, 7, -42))
	require.NoError(t, l.Drop(9, 1))
	require.NoError(t, l.Baseline(1, 0, 500))
	require.NoError(t, l.Read([]byte{0x55, 0x10, 0xFF}))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "time,event,value", lines[0])

	want := []string{
		"rewind,117",
		"misalign,3",
		"parse,2.7=-42",
		"drop,9.1",
		"baseline,1.0=500",
		"read,5510ff",
	}
	for i, suffix := range want {
		parts := strings.SplitN(lines[i+1], ",", 2)
		require.Len(t, parts, 2)
		assert.True(t, stampRE.MatchString(parts[0]), "bad timestamp %q", parts[0])
		assert.Equal(t, suffix, parts[1])
	}
}

func TestCloseNil(t *testing.T) {
	var s *SampleLog
	var d *DebugLog
	assert.NoError(t, s.Close())
	assert.NoError(t, d.Close())
}
