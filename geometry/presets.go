package geometry

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// MediaPreset is one row of the predefined floppy geometry table. Values
// follow the historical media descriptors; see
// https://infogalactic.com/info/Design_of_the_FAT_file_system#media for the
// medium bytes and their corresponding disk sizes.
type MediaPreset struct {
	// SizeKiB is the formatted capacity the preset applies to.
	SizeKiB           uint   `csv:"size_kib"`
	SectorSize        uint16 `csv:"sector_size"`
	SectorsPerCluster uint8  `csv:"sectors_per_cluster"`
	SectorsPerTrack   uint16 `csv:"sectors_per_track"`
	Heads             uint16 `csv:"heads"`
	RootDirEntries    uint16 `csv:"root_dir_entries"`
	// MediumByte is the media descriptor, stored in decimal in the table.
	MediumByte uint8 `csv:"medium_byte"`
}

//go:embed media-presets.csv
var mediaPresetsRawCSV string
var mediaPresets map[uint]MediaPreset

// HardDiskPreset is the fallback geometry used for any size that has no
// predefined floppy medium.
var HardDiskPreset = MediaPreset{
	SectorSize:        512,
	SectorsPerCluster: 4,
	SectorsPerTrack:   63,
	Heads:             255,
	RootDirEntries:    512,
	MediumByte:        0xF8,
}

// PresetForSize returns the canonical geometry for a volume of sizeKiB, or
// [HardDiskPreset] when the size matches no known floppy medium.
func PresetForSize(sizeKiB uint) MediaPreset {
	preset, ok := mediaPresets[sizeKiB]
	if ok {
		return preset
	}
	return HardDiskPreset
}

func init() {
	mediaPresets = make(map[uint]MediaPreset)

	reader := strings.NewReader(mediaPresetsRawCSV)
	err := gocsv.UnmarshalToCallback(
		reader,
		func(row MediaPreset) error {
			_, exists := mediaPresets[row.SizeKiB]
			if exists {
				return fmt.Errorf(
					"duplicate media preset for %d KiB",
					row.SizeKiB,
				)
			}
			mediaPresets[row.SizeKiB] = row
			return nil
		},
	)
	if err != nil {
		panic(fmt.Sprintf("failed loading embedded media presets: %s", err))
	}
}
