package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumDeterministic(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("DP_2024.pdf"),
		[]byte("%PDF-1.7\n1 0 obj\n"),
		make([]byte, 4096),
	}

	seen := make(map[string]int)
	for i, p := range payloads {
		a := Sum(p)
		b := Sum(append([]byte(nil), p...))
		assert.Equal(t, a, b)
		assert.Len(t, a, Size)
		assert.Regexp(t, "^[0-9a-f]+$", a)

		prev, dup := seen[a]
		assert.False(t, dup, "payload %d collides with payload %d", i, prev)
		seen[a] = i
	}
}

func TestSumKnownVector(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Sum([]byte{}))
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Sum([]byte("abc")))
}

func TestFileMatchesSum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.pdf")
	data := []byte("same bytes, any filename")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	got, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, Sum(data), got)

	_, err = File(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}
