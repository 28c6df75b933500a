package fat12

import (
	"fmt"
	"io"

	"github.com/osdev-kit/fat12img/errors"
	"github.com/osdev-kit/fat12img/geometry"
	"github.com/osdev-kit/fat12img/stream"
)

// Volume is the in-memory representation of a FAT12 image: its BIOS
// parameter block, the expanded file allocation table, and the directory
// tree rooted at the fixed root directory. A Volume is owned by a single
// caller and mutated in place; it provides no interior locking.
type Volume struct {
	BPB *geometry.BIOSParameterBlock

	// FATID is the value of the reserved FAT entry 0, the media descriptor
	// ORed with 0xF00.
	FATID uint16

	// EndOfChainMarker is the value of the reserved FAT entry 1.
	EndOfChainMarker uint16

	// RootDirOffset is the byte position of the fixed root directory table.
	RootDirOffset int64

	root       *DirEntry
	fatEntries []uint16
	dev        *stream.Device
}

// RootDir returns the entry acting as the tree root. It has no parent and
// one child slot per root directory entry of the BPB.
func (v *Volume) RootDir() *DirEntry {
	return v.root
}

// computeRootDirOffset positions the root directory right behind the
// reserved sectors and all FAT copies.
func computeRootDirOffset(bpb *geometry.BIOSParameterBlock) int64 {
	return int64(bpb.SectorSize) *
		(int64(bpb.NumberOfFats)*int64(bpb.SectorsPerFat) + int64(bpb.ReservedForBoot))
}

// newRootDir builds an all-empty root directory with one slot per root
// directory entry.
func newRootDir(bpb *geometry.BIOSParameterBlock) *DirEntry {
	root := &DirEntry{}
	copy(root.Name[:], "        ")
	copy(root.Extension[:], "   ")
	root.Attributes |= AttrSubdirectory

	root.children = make([]*DirEntry, bpb.RootDirEntries)
	for i := range root.children {
		root.children[i] = &DirEntry{parent: root}
	}

	return root
}

// Create builds a fresh volume for the given parameters and formats the
// backing stream: the image is zero-filled to its full size, then the BPB,
// the FAT copies, and the empty root directory are written out.
func Create(backing io.ReadWriteSeeker, params geometry.CreateParams) (*Volume, error) {
	bpb := &geometry.BIOSParameterBlock{}
	geometry.InitializeBPB(bpb, params)

	v := &Volume{
		BPB:              bpb,
		RootDirOffset:    computeRootDirOffset(bpb),
		FATID:            uint16(bpb.MediumByte) | 0xF00,
		EndOfChainMarker: DefaultEndOfChainMarker,
		root:             newRootDir(bpb),
		dev:              stream.New(backing),
	}

	entryCount := uint(bpb.LogicalSectors)/uint(bpb.SectorsPerCluster) + 2
	v.fatEntries = make([]uint16, entryCount)
	v.fatEntries[0] = v.FATID
	v.fatEntries[1] = v.EndOfChainMarker

	if err := v.writeImage(); err != nil {
		return nil, err
	}

	return v, nil
}

// Open reads an existing image from the backing stream and materializes its
// metadata and directory tree.
func Open(backing io.ReadWriteSeeker) (*Volume, error) {
	dev := stream.New(backing)

	bpb, err := readBPB(dev)
	if err != nil {
		return nil, err
	}
	if err := validateBPB(bpb); err != nil {
		return nil, err
	}

	v := &Volume{
		BPB:           bpb,
		RootDirOffset: computeRootDirOffset(bpb),
		root:          newRootDir(bpb),
		dev:           dev,
	}

	if err := v.readFAT(); err != nil {
		return nil, err
	}
	v.FATID = v.fatEntries[0]
	v.EndOfChainMarker = v.fatEntries[1]

	if err := v.loadRootDir(); err != nil {
		return nil, err
	}

	return v, nil
}

// readFAT loads the first FAT copy and expands it. The expanded table has
// one entry per 12-bit window of the on-disk FAT.
func (v *Volume) readFAT() errors.DriverError {
	fatSize := uint(v.BPB.SectorsPerFat) * uint(v.BPB.SectorSize)
	fatOffset := int64(v.BPB.SectorSize) * int64(v.BPB.ReservedForBoot)

	fat := make([]byte, fatSize)
	if err := v.dev.ReadAt(fat, fatOffset); err != nil {
		return err
	}

	v.fatEntries = unpackFAT(fat)
	if len(v.fatEntries) < 2 {
		return errors.ErrImageCorrupted.WithMessage("allocation table has no reserved entries")
	}
	return nil
}

// loadRootDir reads the fixed root directory table and recursively scans
// every subdirectory reachable from it.
func (v *Volume) loadRootDir() errors.DriverError {
	rootSize := uint(v.BPB.RootDirEntries) * DirentSize
	rootData := make([]byte, rootSize)

	if err := v.dev.ReadAt(rootData, v.RootDirOffset); err != nil {
		return err
	}

	for i, child := range v.root.children {
		decodeDirent(rootData[i*DirentSize:(i+1)*DirentSize], child)
		child.parent = v.root

		if err := v.scanSubsequentEntries(child); err != nil {
			return err
		}
	}

	return nil
}

// scanSubsequentEntries descends into a directory entry and materializes its
// children. The "." and ".." slots are never descended into; their contents
// are reached through the parent chain.
func (v *Volume) scanSubsequentEntries(dirEntry *DirEntry) errors.DriverError {
	if dirEntry.IsEmpty() || !dirEntry.IsDirectory() || dirEntry.IsDotDir() {
		return nil
	}

	table, err := v.readClusterChain(dirEntry.FirstCluster)
	if err != nil {
		return err
	}

	entryCount := len(table) / DirentSize
	dirEntry.children = make([]*DirEntry, entryCount)

	for i := range dirEntry.children {
		child := &DirEntry{}
		decodeDirent(table[i*DirentSize:(i+1)*DirentSize], child)
		child.parent = dirEntry
		dirEntry.children[i] = child

		if err := v.scanSubsequentEntries(child); err != nil {
			return err
		}
	}

	return nil
}

// writeFATs re-packs the allocation table and writes all identical FAT
// copies behind the reserved sectors.
func (v *Volume) writeFATs() errors.DriverError {
	fatSize := uint(v.BPB.SectorsPerFat) * uint(v.BPB.SectorSize)
	fatOffset := int64(v.BPB.SectorSize) * int64(v.BPB.ReservedForBoot)

	fat := packFAT(v.fatEntries, fatSize)

	for i := 0; i < int(v.BPB.NumberOfFats); i++ {
		offset := fatOffset + int64(i)*int64(fatSize)
		if err := v.dev.WriteAt(fat, offset); err != nil {
			return err
		}
	}

	return nil
}

// encodeDirectory serializes the used slots of a directory into a table of
// size bytes. Slots past the child list stay zero.
func encodeDirectory(dirEntry *DirEntry, size uint) ([]byte, errors.DriverError) {
	if !dirEntry.IsDirectory() {
		return nil, errors.ErrLogic.WithMessage("cannot serialize a file as a directory table")
	}

	table := make([]byte, size)
	for i, child := range dirEntry.children {
		offset := i * DirentSize
		if uint(offset+DirentSize) > size {
			break
		}
		encodeDirent(child, table[offset:offset+DirentSize])
	}

	return table, nil
}

// writeDirectory serializes a subdirectory's table into its cluster chain,
// depth-first so nested tables land on disk too.
func (v *Volume) writeDirectory(entry *DirEntry) errors.DriverError {
	if entry.IsEmpty() || !entry.IsDirectory() || entry.IsDotDir() || entry.FirstCluster == 0 {
		return nil
	}

	for _, child := range entry.children {
		if err := v.writeDirectory(child); err != nil {
			return err
		}
	}

	chainSize, err := v.chainLength(entry.FirstCluster)
	if err != nil {
		return err
	}
	tableSize := chainSize * v.clusterSize()

	table, err := encodeDirectory(entry, tableSize)
	if err != nil {
		return err
	}

	return v.writeToClusterChain(table, entry.FirstCluster)
}

// writeRootDir writes the fixed root directory table and, through
// writeDirectory, every subdirectory table below it.
func (v *Volume) writeRootDir() errors.DriverError {
	rootSize := uint(v.BPB.RootDirEntries) * DirentSize

	table, err := encodeDirectory(v.root, rootSize)
	if err != nil {
		return err
	}

	for _, child := range v.root.children {
		if err := v.writeDirectory(child); err != nil {
			return err
		}
	}

	return v.dev.WriteAt(table, v.RootDirOffset)
}

// WriteMetadata re-serializes the BPB, all FAT copies, and every directory
// table. Each mutating operation calls this before reporting success, so the
// on-disk state is always a complete serialization of the in-memory tree.
func (v *Volume) WriteMetadata() errors.DriverError {
	if err := writeBPB(v.dev, v.BPB); err != nil {
		return err
	}
	if err := v.writeFATs(); err != nil {
		return err
	}
	return v.writeRootDir()
}

// writeImage zero-fills the backing stream to the full image size and
// writes the metadata on top.
func (v *Volume) writeImage() errors.DriverError {
	imageSize := int64(v.BPB.LargeSectors) * int64(v.BPB.SectorSize)
	if err := v.dev.WriteZerosAt(imageSize, 0); err != nil {
		return err
	}

	return v.WriteMetadata()
}

// DeleteEntry removes a file or directory from the image. Directories still
// holding anything beyond their two dot slots are refused. With soft set,
// nothing is touched and the entry stays in the tree, leaving the caller's
// retention policy in charge. Otherwise the entry's clusters are wiped, the
// slot is zero-filled, and the metadata is rewritten; the allocation table
// keeps the chain marked in use.
func (v *Volume) DeleteEntry(entry *DirEntry, soft bool) errors.DriverError {
	if entry.IsDirectory() && entry.ChildCount() > 2 {
		return errors.ErrDirectoryNotEmpty
	}

	if soft {
		return nil
	}

	if entry.FirstCluster != 0 {
		if err := v.eraseClusterChain(entry.FirstCluster); err != nil {
			return err
		}
	}

	entry.freeEntry()
	entry.erase()

	return v.WriteMetadata()
}

// DumpFile copies the contents of a file entry to dst. The trailing
// zero-padding of the final cluster is not included.
func (v *Volume) DumpFile(entry *DirEntry, dst io.Writer) errors.DriverError {
	if entry.IsDirectory() {
		return errors.ErrIsADirectory
	}

	if entry.FirstCluster == 0 || entry.FileSize == 0 {
		return nil
	}

	data, err := v.readClusterChain(entry.FirstCluster)
	if err != nil {
		return err
	}
	if uint(entry.FileSize) > uint(len(data)) {
		return errors.ErrImageCorrupted.WithMessage(
			fmt.Sprintf("file size %d exceeds its cluster chain (%d bytes)",
				entry.FileSize, len(data)))
	}

	if _, werr := dst.Write(data[:entry.FileSize]); werr != nil {
		return errors.ErrIOFailed.WrapError(werr)
	}

	return nil
}

// CreateFile imports the contents of src as a file at path, creating
// missing intermediate directories. An existing entry with the same name is
// reused. The created timestamps are stored packed; createdUsecs is measured
// in microseconds since the Unix epoch.
func (v *Volume) CreateFile(path *Path, src io.ReadSeeker, createdUsecs int64) errors.DriverError {
	fileSize, serr := measureStream(src)
	if serr != nil {
		return serr
	}

	clusterSize := v.clusterSize()
	clusterCount := ceilDiv(uint(fileSize), clusterSize)

	var firstCluster uint16
	if clusterCount > 0 {
		firstCluster = v.allocateClusterChain(clusterCount)
		if firstCluster == 0 {
			return errors.ErrImageFull
		}

		data := make([]byte, fileSize)
		if _, err := io.ReadFull(src, data); err != nil {
			return errors.ErrIOFailed.WrapError(err)
		}

		if err := v.writeToClusterChain(data, firstCluster); err != nil {
			return err
		}
	}

	entry, err := v.CreateEntryFromPath(path)
	if err != nil {
		return err
	}

	entry.FirstCluster = firstCluster
	entry.FileSize = uint32(fileSize)

	date, timeOfDay, millis := PackTimestamp(usecsToTime(createdUsecs))
	entry.CreateDate = date
	entry.CreateTime = timeOfDay
	entry.CreateTimeMillis = millis
	entry.ModifyDate = date
	entry.ModifyTime = timeOfDay

	return nil
}

// measureStream determines the length of a seekable stream and rewinds it.
func measureStream(src io.ReadSeeker) (int64, errors.DriverError) {
	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.ErrIOFailed.WrapError(err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return 0, errors.ErrIOFailed.WrapError(err)
	}
	return size, nil
}

// InstallBootloader writes the given 512-byte boot sector into sector 0 and
// restores the BPB region on top of it, so the volume's geometry and
// identity survive the splice.
func (v *Volume) InstallBootloader(bootSector []byte) errors.DriverError {
	if len(bootSector) != 512 {
		return errors.ErrLogic.WithMessage(
			fmt.Sprintf("boot sector must be 512 bytes, got %d", len(bootSector)))
	}

	if err := v.dev.WriteAt(bootSector, 0); err != nil {
		return err
	}

	return writeBPB(v.dev, v.BPB)
}

// PartitionSize returns the image size in bytes.
func (v *Volume) PartitionSize() uint {
	return uint(v.BPB.SectorSize) * uint(v.BPB.LogicalSectors)
}

// UsedBytes returns the number of bytes occupied by the system area plus
// one byte per allocation-table entry currently in use.
func (v *Volume) UsedBytes() uint {
	used := uint(v.BPB.SectorSize)*
		(uint(v.BPB.ReservedForBoot)+uint(v.BPB.NumberOfFats)*uint(v.BPB.SectorsPerFat)) +
		uint(v.BPB.RootDirEntries)*DirentSize

	clusterCount := uint(v.BPB.LogicalSectors) / uint(v.BPB.SectorsPerCluster)
	for i := uint(2); i < clusterCount && int(i) < len(v.fatEntries); i++ {
		if v.fatEntries[i] != 0 {
			used++
		}
	}

	return used
}

// FreeClusters returns the number of unallocated clusters in the table.
func (v *Volume) FreeClusters() uint {
	free := uint(0)
	for _, entry := range v.fatEntries[2:] {
		if entry == 0 {
			free++
		}
	}
	return free
}
