// Package geometry computes the shape of a FAT12 volume: the BIOS parameter
// block, the media presets keyed by volume size, the derived sectors-per-FAT
// count, and the volume serial number.
package geometry

import (
	"time"
)

// BIOSParameterBlock describes the geometry and identity of a FAT12 image.
// It occupies the 59 bytes starting at byte offset 3 of sector 0; all
// multi-byte fields are little-endian on disk.
type BIOSParameterBlock struct {
	OEMLabel          [8]byte
	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedForBoot   uint16
	NumberOfFats      uint8
	RootDirEntries    uint16
	LogicalSectors    uint16
	MediumByte        uint8
	SectorsPerFat     uint16
	SectorsPerTrack   uint16
	NumberOfHeads     uint16
	HiddenSectors     uint32
	LargeSectors      uint32
	DriveNumber       uint8
	Flags             uint8
	Signature         uint8
	VolumeID          uint32
	VolumeLabel       [11]byte
	FileSystem        [8]byte
}

// ClusterSize returns the allocation unit size in bytes.
func (bpb *BIOSParameterBlock) ClusterSize() uint {
	return uint(bpb.SectorSize) * uint(bpb.SectorsPerCluster)
}

// RootDirSectors returns the number of sectors occupied by the fixed root
// directory, rounded up.
func (bpb *BIOSParameterBlock) RootDirSectors() uint {
	return ceilDiv(uint(bpb.RootDirEntries)*32, uint(bpb.SectorSize))
}

// CreateParams holds the caller-supplied options for a new image. The zero
// value of every field means "use the preset", mirroring the way formatter
// options default.
type CreateParams struct {
	// VolumeSize is the image size in KiB. 0 defaults to 1440.
	VolumeSize uint

	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumberOfFats      uint8
	RootDirEntries    uint16
	DriveNumber       uint8

	// VolumeLabel is space-padded or truncated to 11 bytes.
	VolumeLabel string
}

func ceilDiv(a, b uint) uint {
	return (a + b - 1) / b
}

// SectorsPerFat derives the size of one FAT copy in sectors for the geometry
// currently in bpb.
//
// The layout of a FAT12 formatted partition is: boot sectors, the file
// allocation tables, the root directory, data. The FAT must be able to
// address every data cluster plus the two reserved entries, but its own
// sectors subtract from the data area, so solve for F:
//
//	tmp_sectors = sectors - root_dir_sectors - boot_sectors
//	clusters_with_fat = ceil(tmp_sectors / sectors_per_cluster) + 2
//	F = ceil(1.5 * clusters_with_fat /
//	        (sector_size * (1 + 1.5 * number_of_fats / cluster_size)))
func SectorsPerFat(bpb *BIOSParameterBlock) uint16 {
	sectors := uint(bpb.LargeSectors)
	sectorSize := uint(bpb.SectorSize)
	clusterSize := bpb.ClusterSize()

	tmpSectors := sectors - bpb.RootDirSectors() - uint(bpb.ReservedForBoot)
	clustersWithFat := ceilDiv(tmpSectors, uint(bpb.SectorsPerCluster)) + 2

	numerator := 3 * clustersWithFat / 2
	denominator := sectorSize + 3*sectorSize*uint(bpb.NumberOfFats)/(2*clusterSize)

	return uint16(ceilDiv(numerator, denominator))
}

// GenerateVolumeID produces a serial number from the current wall time. The
// low bit is forced on, so the result is never zero.
func GenerateVolumeID() uint32 {
	now := time.Now()
	usecs := uint32(now.UnixMicro() % 1000000)
	secs := uint32(now.Unix())

	return (usecs&0xFFFF)<<16 | (secs & 0xFFFF) | 1
}

// InitializeBPB fills bpb for a new image of the requested size. Geometry
// values come from the media preset matching params.VolumeSize; explicit
// fields in params override the preset. Supplying a custom sector size also
// forces the hard-disk medium byte, since no standard floppy medium matches.
func InitializeBPB(bpb *BIOSParameterBlock, params CreateParams) {
	copy(bpb.OEMLabel[:], "f12     ")

	if params.VolumeSize == 0 {
		params.VolumeSize = 1440
	}
	size := params.VolumeSize * 1024

	preset := PresetForSize(params.VolumeSize)
	bpb.SectorSize = preset.SectorSize
	bpb.SectorsPerCluster = preset.SectorsPerCluster
	bpb.SectorsPerTrack = preset.SectorsPerTrack
	bpb.NumberOfHeads = preset.Heads
	bpb.RootDirEntries = preset.RootDirEntries
	bpb.MediumByte = preset.MediumByte

	if params.SectorSize != 0 && params.SectorSize != bpb.SectorSize {
		bpb.SectorSize = params.SectorSize
		bpb.MediumByte = 0xF8
	}
	if params.SectorsPerCluster != 0 {
		bpb.SectorsPerCluster = params.SectorsPerCluster
	}
	if params.ReservedSectors != 0 {
		bpb.ReservedForBoot = params.ReservedSectors
	} else {
		bpb.ReservedForBoot = 1
	}
	if params.NumberOfFats != 0 {
		bpb.NumberOfFats = params.NumberOfFats
	} else {
		bpb.NumberOfFats = 2
	}
	if params.RootDirEntries != 0 {
		bpb.RootDirEntries = params.RootDirEntries
	}
	if params.DriveNumber != 0 {
		bpb.DriveNumber = params.DriveNumber
	} else {
		bpb.DriveNumber = 0x80
	}

	bpb.LogicalSectors = uint16(size / uint(bpb.SectorSize))
	bpb.HiddenSectors = 0
	bpb.LargeSectors = uint32(bpb.LogicalSectors)
	bpb.Flags = 0
	bpb.Signature = 0
	bpb.SectorsPerFat = SectorsPerFat(bpb)
	bpb.VolumeID = GenerateVolumeID()

	label := params.VolumeLabel
	if label == "" {
		label = "NO NAME"
	}
	for i := range bpb.VolumeLabel {
		bpb.VolumeLabel[i] = ' '
	}
	copy(bpb.VolumeLabel[:], label)

	copy(bpb.FileSystem[:], "FAT12   ")
}
