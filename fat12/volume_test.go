package fat12_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osdev-kit/fat12img/errors"
	"github.com/osdev-kit/fat12img/fat12"
	imgtest "github.com/osdev-kit/fat12img/testing"
)

func randomPayload(t *testing.T, size int) []byte {
	payload := make([]byte, size)
	_, err := rand.New(rand.NewSource(int64(size))).Read(payload)
	require.NoError(t, err)
	return payload
}

func resolve(t *testing.T, volume *fat12.Volume, path string) *fat12.DirEntry {
	parsed, err := fat12.ParsePath(path)
	require.NoError(t, err)
	return fat12.ResolvePath(volume.RootDir(), parsed)
}

func TestCreateDefaultImage(t *testing.T) {
	volume, _ := imgtest.NewFormattedImage(t, 1440)
	bpb := volume.BPB

	assert.Equal(t, uint16(512), bpb.SectorSize)
	assert.Equal(t, uint8(1), bpb.SectorsPerCluster)
	assert.Equal(t, uint16(224), bpb.RootDirEntries)
	assert.Equal(t, uint8(0xF0), bpb.MediumByte)
	assert.Equal(t, uint16(2880), bpb.LogicalSectors)
	assert.Equal(t, "FAT12   ", string(bpb.FileSystem[:]))
	assert.Equal(t, "NO NAME    ", string(bpb.VolumeLabel[:]))
	assert.NotEqual(t, uint32(0), bpb.VolumeID)
}

func TestEmptyImageListing(t *testing.T) {
	volume, backing := imgtest.NewFormattedImage(t, 1440)

	root := volume.RootDir()
	assert.Len(t, root.Children(), 224)
	assert.Equal(t, 0, root.ChildCount())
	assert.Equal(t, 0, root.FileCount())
	assert.Equal(t, 0, root.DirectoryCount())

	reopened := imgtest.Reopen(t, backing)
	assert.Equal(t, 0, reopened.RootDir().FileCount())
	assert.Equal(t, 0, reopened.RootDir().DirectoryCount())
}

func TestImportFile(t *testing.T) {
	volume, backing := imgtest.NewFormattedImage(t, 1440)
	payload := randomPayload(t, 1302)

	err := volume.PutFile("/BIN/COPY", bytes.NewReader(payload), 1528648395420000)
	require.NoError(t, err)

	entry := resolve(t, volume, "/BIN/COPY")
	require.NotNil(t, entry)
	assert.Equal(t, uint32(1302), entry.FileSize)
	assert.NotEqual(t, uint16(0), entry.FirstCluster)
	assert.False(t, entry.IsDirectory())
	assert.Equal(t, uint16(19658), entry.CreateDate)
	assert.Equal(t, uint16(33831), entry.CreateTime)

	var exported bytes.Buffer
	require.NoError(t, volume.GetFile("/BIN/COPY", &exported))
	assert.Equal(t, payload, exported.Bytes())

	// On disk the file's final cluster is padded with zeros up to the
	// cluster boundary.
	raw := imgtest.ImageBytes(t, backing)
	dataStart := int(volume.RootDirOffset) + 224*32
	fileStart := dataStart + int(entry.FirstCluster-2)*512
	assert.Equal(t, payload, raw[fileStart:fileStart+1302])
	assert.Equal(t, make([]byte, 1536-1302), raw[fileStart+1302:fileStart+1536])

	// The import survives a reopen.
	reopened := imgtest.Reopen(t, backing)
	assert.Equal(t, 1, reopened.RootDir().FileCount())
	assert.Equal(t, 1, reopened.RootDir().DirectoryCount())

	var again bytes.Buffer
	require.NoError(t, reopened.GetFile("/BIN/COPY", &again))
	assert.Equal(t, payload, again.Bytes())
}

func TestImportEmptyFile(t *testing.T) {
	volume, backing := imgtest.NewFormattedImage(t, 1440)

	require.NoError(t, volume.PutFile("/EMPTY", bytes.NewReader(nil), 0))

	entry := resolve(t, volume, "/EMPTY")
	require.NotNil(t, entry)
	assert.Equal(t, uint32(0), entry.FileSize)
	assert.Equal(t, uint16(0), entry.FirstCluster)

	reopened := imgtest.Reopen(t, backing)
	assert.Equal(t, 1, reopened.RootDir().FileCount())
}

func TestMoveDirectory(t *testing.T) {
	volume, backing := imgtest.NewFormattedImage(t, 1440)
	payload := randomPayload(t, 600)

	require.NoError(t, volume.Mkdir("/A"))
	require.NoError(t, volume.PutFile("/A/B/F.TXT", bytes.NewReader(payload), 0))
	require.NoError(t, volume.Mkdir("/C"))

	require.NoError(t, volume.Move("/A/B", "/C", true))

	// The old slot is gone, the new one holds the same children.
	assert.Nil(t, resolve(t, volume, "/A/B"))

	moved := resolve(t, volume, "/C/B")
	require.NotNil(t, moved)
	assert.True(t, moved.IsDirectory())

	// Every child's parent pointer targets the new slot.
	file := resolve(t, volume, "/C/B/F.TXT")
	require.NotNil(t, file)
	assert.Same(t, moved, file.Parent())
	assert.Equal(t, "/C/B/F.TXT", file.Path())

	var exported bytes.Buffer
	require.NoError(t, volume.GetFile("/C/B/F.TXT", &exported))
	assert.Equal(t, payload, exported.Bytes())

	// The move is visible after a reopen too.
	reopened := imgtest.Reopen(t, backing)
	assert.Nil(t, resolve(t, reopened, "/A/B"))
	assert.NotNil(t, resolve(t, reopened, "/C/B/F.TXT"))
}

func TestMoveRefusesOwnSubtree(t *testing.T) {
	volume, _ := imgtest.NewFormattedImage(t, 1440)
	require.NoError(t, volume.Mkdir("/A/B"))

	err := volume.Move("/A", "/A/B", true)
	assert.ErrorIs(t, err, errors.ErrLogic)
}

func TestMoveNonRecursiveNonEmptyDirectory(t *testing.T) {
	volume, _ := imgtest.NewFormattedImage(t, 1440)
	require.NoError(t, volume.PutFile("/A/F.TXT", bytes.NewReader([]byte("x")), 0))
	require.NoError(t, volume.Mkdir("/C"))

	err := volume.Move("/A", "/C", false)
	assert.ErrorIs(t, err, errors.ErrIsADirectory)
}

func TestBulkMoveByDot(t *testing.T) {
	volume, _ := imgtest.NewFormattedImage(t, 1440)
	require.NoError(t, volume.PutFile("/A/X.TXT", bytes.NewReader([]byte("xx")), 0))
	require.NoError(t, volume.PutFile("/A/Y.TXT", bytes.NewReader([]byte("yy")), 0))
	require.NoError(t, volume.Mkdir("/C"))

	source := resolve(t, volume, "/A")
	require.NotNil(t, source)
	dot := source.Children()[0]
	require.True(t, dot.IsDotDir())

	dest := resolve(t, volume, "/C")
	require.NoError(t, fat12.MoveEntry(dot, dest))
	require.NoError(t, volume.WriteMetadata())

	assert.Equal(t, 2, source.ChildCount(), "only the dot entries stay behind")
	assert.NotNil(t, resolve(t, volume, "/C/X.TXT"))
	assert.NotNil(t, resolve(t, volume, "/C/Y.TXT"))
	assert.Nil(t, resolve(t, volume, "/A/X.TXT"))
}

func TestMoveIntoFileFails(t *testing.T) {
	volume, _ := imgtest.NewFormattedImage(t, 1440)
	require.NoError(t, volume.PutFile("/F.TXT", bytes.NewReader([]byte("x")), 0))
	require.NoError(t, volume.PutFile("/G.TXT", bytes.NewReader([]byte("y")), 0))

	src := resolve(t, volume, "/F.TXT")
	dest := resolve(t, volume, "/G.TXT")

	err := fat12.MoveEntry(src, dest)
	assert.ErrorIs(t, err, errors.ErrNotADirectory)
}

func TestDeleteNonEmptyDirectoryNonRecursive(t *testing.T) {
	volume, backing := imgtest.NewFormattedImage(t, 1440)
	require.NoError(t, volume.PutFile("/D/F.TXT", bytes.NewReader([]byte("payload")), 0))

	before := imgtest.ImageBytes(t, backing)

	err := volume.Remove("/D", false, false)
	assert.ErrorIs(t, err, errors.ErrDirectoryNotEmpty)

	after := imgtest.ImageBytes(t, backing)
	assert.Equal(t, before, after, "a refused delete must leave the image untouched")
}

func TestDeleteFileErasesClusters(t *testing.T) {
	volume, backing := imgtest.NewFormattedImage(t, 1440)
	payload := randomPayload(t, 700)
	require.NoError(t, volume.PutFile("/F.BIN", bytes.NewReader(payload), 0))

	entry := resolve(t, volume, "/F.BIN")
	require.NotNil(t, entry)
	firstCluster := entry.FirstCluster

	require.NoError(t, volume.Remove("/F.BIN", false, false))

	assert.Nil(t, resolve(t, volume, "/F.BIN"))

	// The file's clusters are zeroed on disk.
	raw := imgtest.ImageBytes(t, backing)
	dataStart := int(volume.RootDirOffset) + 224*32
	fileStart := dataStart + int(firstCluster-2)*512
	assert.Equal(t, make([]byte, 1024), raw[fileStart:fileStart+1024])

	reopened := imgtest.Reopen(t, backing)
	assert.Equal(t, 0, reopened.RootDir().FileCount())
}

func TestDeleteRecursive(t *testing.T) {
	volume, backing := imgtest.NewFormattedImage(t, 1440)
	require.NoError(t, volume.PutFile("/D/SUB/F.TXT", bytes.NewReader([]byte("abc")), 0))
	require.NoError(t, volume.PutFile("/D/G.TXT", bytes.NewReader([]byte("def")), 0))

	require.NoError(t, volume.Remove("/D", true, false))

	assert.Nil(t, resolve(t, volume, "/D"))

	reopened := imgtest.Reopen(t, backing)
	assert.Equal(t, 0, reopened.RootDir().FileCount())
	assert.Equal(t, 0, reopened.RootDir().DirectoryCount())
}

func TestSoftDeleteLeavesDataInPlace(t *testing.T) {
	volume, backing := imgtest.NewFormattedImage(t, 1440)
	require.NoError(t, volume.PutFile("/F.BIN", bytes.NewReader([]byte("keep me")), 0))

	before := imgtest.ImageBytes(t, backing)

	require.NoError(t, volume.Remove("/F.BIN", false, true))

	after := imgtest.ImageBytes(t, backing)
	assert.Equal(t, before, after)
	assert.NotNil(t, resolve(t, volume, "/F.BIN"))
}

func TestGetFileOnDirectoryFails(t *testing.T) {
	volume, _ := imgtest.NewFormattedImage(t, 1440)
	require.NoError(t, volume.Mkdir("/D"))

	var sink bytes.Buffer
	err := volume.GetFile("/D", &sink)
	assert.ErrorIs(t, err, errors.ErrIsADirectory)
}

func TestImageFull(t *testing.T) {
	volume, _ := imgtest.NewFormattedImage(t, 160)

	// A 160 KiB image cannot hold a 200 KiB file.
	payload := randomPayload(t, 200*1024)
	err := volume.PutFile("/BIG.BIN", bytes.NewReader(payload), 0)
	assert.ErrorIs(t, err, errors.ErrImageFull)
}

func TestInstallBootloader(t *testing.T) {
	volume, backing := imgtest.NewFormattedImage(t, 1440)

	bootSector := bytes.Repeat([]byte{0xAB}, 512)
	require.NoError(t, volume.InstallBootloader(bootSector))

	raw := imgtest.ImageBytes(t, backing)
	assert.Equal(t, []byte{0xAB, 0xAB, 0xAB}, raw[0:3], "jump bytes come from the blob")
	assert.Equal(t, byte(0xAB), raw[62], "payload beyond the BPB comes from the blob")

	// The BPB region survives the splice: the image still opens.
	reopened := imgtest.Reopen(t, backing)
	assert.Equal(t, uint16(2880), reopened.BPB.LogicalSectors)

	assert.Error(t, volume.InstallBootloader(make([]byte, 100)))
}

func TestInstallSimpleBootloader(t *testing.T) {
	volume, backing := imgtest.NewFormattedImage(t, 1440)
	require.NoError(t, volume.PutFile("/KERNEL.SYS", bytes.NewReader([]byte("k")), 0))

	bootSector := make([]byte, 512)
	require.NoError(t, volume.InstallSimpleBootloader(bootSector, "kernel.sys"))

	raw := imgtest.ImageBytes(t, backing)
	assert.Equal(t, "KERNEL  SYS", string(raw[fat12.SimpleBootNameOffset:fat12.SimpleBootNameOffset+11]))

	err := volume.InstallSimpleBootloader(make([]byte, 512), "missing.bin")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestUsedBytesGrowWithContent(t *testing.T) {
	volume, _ := imgtest.NewFormattedImage(t, 1440)

	emptyUsed := volume.UsedBytes()
	assert.Equal(t, volume.PartitionSize(), uint(1440*1024))

	require.NoError(t, volume.PutFile("/F.BIN", bytes.NewReader(make([]byte, 5000)), 0))
	assert.Greater(t, volume.UsedBytes(), emptyUsed)

	info := volume.Info()
	assert.Equal(t, 1, info.FileCount)
	assert.Equal(t, 0, info.DirCount)
	assert.Equal(t, "FAT12   ", info.FileSystem)
}
