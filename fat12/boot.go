package fat12

import (
	"fmt"

	"github.com/osdev-kit/fat12img/errors"
)

// SimpleBootNameOffset is the position inside a 512-byte "simple" boot
// sector reserved for the 8.3 name of the file the loader starts.
const SimpleBootNameOffset = 498

// PatchBootFileName writes the 8.3-converted form of name into the reserved
// slot of a simple boot sector, in place.
func PatchBootFileName(bootSector []byte, name string) errors.DriverError {
	if len(bootSector) != 512 {
		return errors.ErrLogic.WithMessage(
			fmt.Sprintf("boot sector must be 512 bytes, got %d", len(bootSector)))
	}

	converted := ConvertName(name)
	copy(bootSector[SimpleBootNameOffset:SimpleBootNameOffset+11], converted[:])
	return nil
}

// InstallSimpleBootloader patches the boot file name into bootSector and
// installs it, after checking that the named file actually exists in the
// root directory.
func (v *Volume) InstallSimpleBootloader(bootSector []byte, bootFile string) errors.DriverError {
	converted := ConvertName(bootFile)
	var name [8]byte
	var ext [3]byte
	copy(name[:], converted[:8])
	copy(ext[:], converted[8:])

	exists := false
	for _, child := range v.root.children {
		if child.IsEmpty() {
			continue
		}
		if child.Name == name && child.Extension == ext {
			exists = true
			break
		}
	}
	if !exists {
		return errors.ErrNotFound
	}

	if err := PatchBootFileName(bootSector, bootFile); err != nil {
		return err
	}
	return v.InstallBootloader(bootSector)
}
