package fat12_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osdev-kit/fat12img/fat12"
	imgtest "github.com/osdev-kit/fat12img/testing"
)

func TestBPBRoundTrip(t *testing.T) {
	// Opening an image and re-serializing it must reproduce the BPB region
	// byte for byte.
	_, backing := imgtest.NewFormattedImage(t, 1440)
	before := imgtest.ImageBytes(t, backing)

	reopened := imgtest.Reopen(t, backing)
	require.NoError(t, reopened.WriteMetadata())

	after := imgtest.ImageBytes(t, backing)
	assert.Equal(t, before[3:62], after[3:62], "BPB region must round-trip")
	assert.Equal(t, before, after, "a clean rewrite must not change the image")
}

func TestOpenReadsGeometry(t *testing.T) {
	created, backing := imgtest.NewFormattedImage(t, 1440)

	opened := imgtest.Reopen(t, backing)

	assert.Equal(t, *created.BPB, *opened.BPB)
	assert.Equal(t, created.RootDirOffset, opened.RootDirOffset)
	assert.Equal(t, created.FATID, opened.FATID)
	assert.Equal(t, created.EndOfChainMarker, opened.EndOfChainMarker)
}

func TestOpenRejectsGarbage(t *testing.T) {
	backing := imgtest.NewBlankStream(64)

	_, err := fat12.Open(backing)
	assert.Error(t, err, "an all-zero stream has no valid BPB")
}
