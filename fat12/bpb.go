package fat12

import (
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/noxer/bytewriter"

	"github.com/osdev-kit/fat12img/errors"
	"github.com/osdev-kit/fat12img/geometry"
	"github.com/osdev-kit/fat12img/stream"
)

// readBPB decodes the 59-byte BIOS parameter block starting at byte offset 3
// of the image. All fields are little-endian.
func readBPB(dev *stream.Device) (*geometry.BIOSParameterBlock, errors.DriverError) {
	buffer := make([]byte, bpbSize)
	if err := dev.ReadAt(buffer, bpbOffset); err != nil {
		return nil, err
	}

	bpb := &geometry.BIOSParameterBlock{}
	copy(bpb.OEMLabel[:], buffer[0:8])
	bpb.SectorSize = binary.LittleEndian.Uint16(buffer[8:10])
	bpb.SectorsPerCluster = buffer[10]
	bpb.ReservedForBoot = binary.LittleEndian.Uint16(buffer[11:13])
	bpb.NumberOfFats = buffer[13]
	bpb.RootDirEntries = binary.LittleEndian.Uint16(buffer[14:16])
	bpb.LogicalSectors = binary.LittleEndian.Uint16(buffer[16:18])
	bpb.MediumByte = buffer[18]
	bpb.SectorsPerFat = binary.LittleEndian.Uint16(buffer[19:21])
	bpb.SectorsPerTrack = binary.LittleEndian.Uint16(buffer[21:23])
	bpb.NumberOfHeads = binary.LittleEndian.Uint16(buffer[23:25])
	bpb.HiddenSectors = binary.LittleEndian.Uint32(buffer[25:29])
	bpb.LargeSectors = binary.LittleEndian.Uint32(buffer[29:33])
	bpb.DriveNumber = buffer[33]
	bpb.Flags = buffer[34]
	bpb.Signature = buffer[35]
	bpb.VolumeID = binary.LittleEndian.Uint32(buffer[36:40])
	copy(bpb.VolumeLabel[:], buffer[40:51])
	copy(bpb.FileSystem[:], buffer[51:59])

	return bpb, nil
}

// encodeBPB serializes bpb into its 59-byte on-disk form.
func encodeBPB(bpb *geometry.BIOSParameterBlock) []byte {
	buffer := make([]byte, bpbSize)
	writer := bytewriter.New(buffer)

	writer.Write(bpb.OEMLabel[:])
	binary.Write(writer, binary.LittleEndian, bpb.SectorSize)
	binary.Write(writer, binary.LittleEndian, bpb.SectorsPerCluster)
	binary.Write(writer, binary.LittleEndian, bpb.ReservedForBoot)
	binary.Write(writer, binary.LittleEndian, bpb.NumberOfFats)
	binary.Write(writer, binary.LittleEndian, bpb.RootDirEntries)
	binary.Write(writer, binary.LittleEndian, bpb.LogicalSectors)
	binary.Write(writer, binary.LittleEndian, bpb.MediumByte)
	binary.Write(writer, binary.LittleEndian, bpb.SectorsPerFat)
	binary.Write(writer, binary.LittleEndian, bpb.SectorsPerTrack)
	binary.Write(writer, binary.LittleEndian, bpb.NumberOfHeads)
	binary.Write(writer, binary.LittleEndian, bpb.HiddenSectors)
	binary.Write(writer, binary.LittleEndian, bpb.LargeSectors)
	binary.Write(writer, binary.LittleEndian, bpb.DriveNumber)
	binary.Write(writer, binary.LittleEndian, bpb.Flags)
	binary.Write(writer, binary.LittleEndian, bpb.Signature)
	binary.Write(writer, binary.LittleEndian, bpb.VolumeID)
	writer.Write(bpb.VolumeLabel[:])
	writer.Write(bpb.FileSystem[:])

	return buffer
}

// writeBPB writes the BIOS parameter block at its fixed position, leaving
// the three-byte jump instruction before it untouched.
func writeBPB(dev *stream.Device, bpb *geometry.BIOSParameterBlock) errors.DriverError {
	return dev.WriteAt(encodeBPB(bpb), bpbOffset)
}

// validateBPB sanity-checks the decoded geometry. Every violation is
// reported, not just the first one.
func validateBPB(bpb *geometry.BIOSParameterBlock) errors.DriverError {
	var result *multierror.Error

	if bpb.SectorSize == 0 {
		result = multierror.Append(result, fmt.Errorf("sector size is zero"))
	}
	if bpb.SectorsPerCluster == 0 {
		result = multierror.Append(result, fmt.Errorf("sectors per cluster is zero"))
	}
	if bpb.NumberOfFats == 0 {
		result = multierror.Append(result, fmt.Errorf("no file allocation tables"))
	}
	if bpb.SectorsPerFat == 0 {
		result = multierror.Append(result, fmt.Errorf("sectors per FAT is zero"))
	}
	if bpb.RootDirEntries == 0 {
		result = multierror.Append(result, fmt.Errorf("root directory has no entries"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return errors.ErrImageCorrupted.WrapError(err)
	}
	return nil
}
