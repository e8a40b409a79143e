package encoding

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func decodeAll(t *testing.T, input []byte) string {
	t.Helper()

	r, err := NewReader(bytes.NewReader(input))
	require.NoError(t, err)

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(out)
}

func TestNewReader_PlainUTF8(t *testing.T) {
	assert.Equal(t, "reference;amount\nR1;2300\n", decodeAll(t, []byte("reference;amount\nR1;2300\n")))
}

func TestNewReader_UTF8BOMStripped(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("R1;2300")...)
	assert.Equal(t, "R1;2300", decodeAll(t, input))
}

func TestNewReader_UTF16LE(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	input, err := enc.Bytes([]byte("R1;2300"))
	require.NoError(t, err)

	assert.Equal(t, "R1;2300", decodeAll(t, input))
}

func TestNewReader_Windows1252Fallback(t *testing.T) {
	enc := charmap.Windows1252.NewEncoder()
	input, err := enc.Bytes([]byte("Kofi Mensah; Aburi café"))
	require.NoError(t, err)

	assert.Equal(t, "Kofi Mensah; Aburi café", decodeAll(t, input))
}
