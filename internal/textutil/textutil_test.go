package textutil

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	assert.Equal(t, "plain", Decode([]byte("plain")))
	assert.Equal(t, "ok�!", Decode([]byte("ok\xff!")))
	assert.Equal(t, "", Decode(nil))
}

func TestNewReader(t *testing.T) {
	out, err := io.ReadAll(NewReader(strings.NewReader("line\xfe\nnext\n")))
	require.NoError(t, err)
	assert.Equal(t, "line�\nnext\n", string(out))
}
