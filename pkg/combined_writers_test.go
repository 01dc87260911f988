package pkg

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestCombinedWriter(t *testing.T) {
	var b1, b2 bytes.Buffer
	cw := NewCombinedWriter(&b1, &b2)

	n, err := cw.Write([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "ping", b1.String())
	assert.Equal(t, "ping", b2.String())
}

func TestCombinedWriter_OneFails(t *testing.T) {
	var b bytes.Buffer
	cw := NewCombinedWriter(failingWriter{}, &b)

	_, err := cw.Write([]byte("ping"))
	require.Error(t, err)
	// the healthy writer still got the bytes
	assert.Equal(t, "ping", b.String())
}
