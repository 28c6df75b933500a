// Package testing provides helpers for building in-memory FAT12 images in
// package tests.
package testing

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/osdev-kit/fat12img/fat12"
	"github.com/osdev-kit/fat12img/geometry"
)

// NewBlankStream returns a fixed-size, in-memory read/write stream of
// sizeKiB kibibytes, all zeros.
func NewBlankStream(sizeKiB uint) io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(make([]byte, sizeKiB*1024))
}

// NewFormattedImage creates a fresh FAT12 volume of sizeKiB kibibytes on an
// in-memory stream and returns both. It fails the test on any error.
func NewFormattedImage(t *testing.T, sizeKiB uint) (*fat12.Volume, io.ReadWriteSeeker) {
	stream := NewBlankStream(sizeKiB)

	volume, err := fat12.Create(stream, geometry.CreateParams{VolumeSize: sizeKiB})
	require.NoError(t, err, "formatting a %d KiB image must succeed", sizeKiB)

	return volume, stream
}

// ImageBytes drains the full contents of an image stream. It fails the test
// on any error.
func ImageBytes(t *testing.T, stream io.ReadWriteSeeker) []byte {
	_, err := stream.Seek(0, io.SeekStart)
	require.NoError(t, err)

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	return data
}

// Reopen re-reads a volume from its backing stream, giving tests the
// on-disk view of earlier mutations. It fails the test on any error.
func Reopen(t *testing.T, stream io.ReadWriteSeeker) *fat12.Volume {
	volume, err := fat12.Open(stream)
	require.NoError(t, err, "re-opening the image must succeed")
	return volume
}
