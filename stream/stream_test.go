package stream_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/osdev-kit/fat12img/errors"
	"github.com/osdev-kit/fat12img/stream"
)

func TestReadWriteAt(t *testing.T) {
	backing := make([]byte, 64)
	dev := stream.New(bytesextra.NewReadWriteSeeker(backing))

	require.NoError(t, dev.WriteAt([]byte{1, 2, 3, 4}, 16))

	buffer := make([]byte, 4)
	require.NoError(t, dev.ReadAt(buffer, 16))
	assert.Equal(t, []byte{1, 2, 3, 4}, buffer)

	assert.Nil(t, dev.FirstOSError())
}

func TestWriteZerosAt(t *testing.T) {
	backing := make([]byte, 8192)
	for i := range backing {
		backing[i] = 0xFF
	}
	dev := stream.New(bytesextra.NewReadWriteSeeker(backing))

	require.NoError(t, dev.WriteZerosAt(5000, 100))

	for i := 100; i < 5100; i++ {
		require.Equal(t, byte(0), backing[i], "byte %d", i)
	}
	assert.Equal(t, byte(0xFF), backing[99])
	assert.Equal(t, byte(0xFF), backing[5100])
}

func TestFirstOSErrorIsLatched(t *testing.T) {
	dev := stream.New(bytesextra.NewReadWriteSeeker(make([]byte, 16)))

	// Reading past the end of a fixed-size stream fails.
	err := dev.ReadAt(make([]byte, 8), 12)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIOFailed)

	first := dev.FirstOSError()
	require.NotNil(t, first)

	// A later failure does not overwrite the first captured error.
	_ = dev.ReadAt(make([]byte, 8), 100)
	assert.Equal(t, first, dev.FirstOSError())
}
