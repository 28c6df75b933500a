package fat12

import (
	"fmt"

	bitmap "github.com/boljen/go-bitmap"

	"github.com/osdev-kit/fat12img/errors"
)

// unpackFAT expands a packed file allocation table into one 16-bit word per
// 12-bit entry. Entry n occupies the 12-bit window starting at bit 12*n.
func unpackFAT(fat []byte) []uint16 {
	entryCount := len(fat) * 2 / 3
	entries := make([]uint16, entryCount)

	for n := 0; n < entryCount; n++ {
		offset := n * 3 / 2
		if n%2 == 0 {
			entries[n] = uint16(fat[offset]) | uint16(fat[offset+1]&0x0F)<<8
		} else {
			entries[n] = uint16(fat[offset])>>4 | uint16(fat[offset+1])<<4
		}
	}

	return entries
}

// packFAT is the inverse of unpackFAT. The result is fatSize bytes long;
// bytes past the last entry stay zero.
func packFAT(entries []uint16, fatSize uint) []byte {
	fat := make([]byte, fatSize)

	for n, entry := range entries {
		offset := n * 3 / 2
		if n%2 == 0 {
			fat[offset] = byte(entry)
			fat[offset+1] = fat[offset+1]&0xF0 | byte(entry>>8)&0x0F
		} else {
			fat[offset] = fat[offset]&0x0F | byte(entry)<<4
			fat[offset+1] = byte(entry >> 4)
		}
	}

	return fat
}

// clusterSize returns the allocation unit size in bytes.
func (v *Volume) clusterSize() uint {
	return v.BPB.ClusterSize()
}

// clusterOffset returns the byte position of a cluster on the image.
// Cluster numbering starts at 2; the first data cluster sits right behind
// the fixed root directory.
func (v *Volume) clusterOffset(cluster uint16) int64 {
	rootSectors := uint(v.BPB.RootDirEntries) * DirentSize / uint(v.BPB.SectorSize)
	sectorOffset := uint(cluster-2)*uint(v.BPB.SectorsPerCluster) + rootSectors

	return v.RootDirOffset + int64(sectorOffset)*int64(v.BPB.SectorSize)
}

// clusterChain collects the clusters of the chain starting at first, in
// order. A chain that leaves the table, hits a free entry, or revisits a
// cluster marks the image as corrupt.
func (v *Volume) clusterChain(first uint16) ([]uint16, errors.DriverError) {
	visited := bitmap.New(len(v.fatEntries))
	chain := []uint16{}

	current := first
	for {
		if int(current) >= len(v.fatEntries) || current < 2 {
			return nil, errors.ErrImageCorrupted.WithMessage(
				fmt.Sprintf("cluster chain from %d leaves the allocation table at %d",
					first, current))
		}
		if visited.Get(int(current)) {
			return nil, errors.ErrImageCorrupted.WithMessage(
				fmt.Sprintf("cluster chain from %d revisits cluster %d", first, current))
		}
		visited.Set(int(current), true)
		chain = append(chain, current)

		next := v.fatEntries[current]
		if next == v.EndOfChainMarker {
			return chain, nil
		}
		if next == 0 {
			return nil, errors.ErrImageCorrupted.WithMessage(
				fmt.Sprintf("cluster chain from %d runs into free cluster after %d",
					first, current))
		}
		current = next
	}
}

// chainLength returns the number of clusters in the chain starting at first.
func (v *Volume) chainLength(first uint16) (uint, errors.DriverError) {
	chain, err := v.clusterChain(first)
	if err != nil {
		return 0, err
	}
	return uint(len(chain)), nil
}

// readClusterChain loads the full contents of a cluster chain. The result
// length is always a multiple of the cluster size.
func (v *Volume) readClusterChain(first uint16) ([]byte, errors.DriverError) {
	chain, err := v.clusterChain(first)
	if err != nil {
		return nil, err
	}

	clusterSize := v.clusterSize()
	data := make([]byte, clusterSize*uint(len(chain)))

	for i, cluster := range chain {
		buffer := data[uint(i)*clusterSize : uint(i+1)*clusterSize]
		if err := v.dev.ReadAt(buffer, v.clusterOffset(cluster)); err != nil {
			return nil, err
		}
	}

	return data, nil
}

// writeToClusterChain writes data across the chain starting at first. The
// chain must be exactly large enough: no shorter than the data, and less
// than one cluster longer. A short final cluster is zero-padded up to the
// cluster boundary.
func (v *Volume) writeToClusterChain(data []byte, first uint16) errors.DriverError {
	chain, err := v.clusterChain(first)
	if err != nil {
		return err
	}

	clusterSize := v.clusterSize()
	chainSize := clusterSize * uint(len(chain))
	size := uint(len(data))

	if size > chainSize {
		return errors.ErrLogic.WithMessage("data is larger than the cluster chain")
	}
	if size+clusterSize <= chainSize {
		return errors.ErrLogic.WithMessage("cluster chain exceeds the data by a whole cluster or more")
	}

	for i, cluster := range chain {
		offset := v.clusterOffset(cluster)
		written := uint(i) * clusterSize
		bytesLeft := size - written

		if bytesLeft < clusterSize {
			buffer := make([]byte, clusterSize)
			copy(buffer, data[written:])
			return v.dev.WriteAt(buffer, offset)
		}
		if err := v.dev.WriteAt(data[written:written+clusterSize], offset); err != nil {
			return err
		}
	}

	return nil
}

// eraseClusterChain overwrites every cluster of the chain with zeros. The
// allocation table itself is not modified.
func (v *Volume) eraseClusterChain(first uint16) errors.DriverError {
	chain, err := v.clusterChain(first)
	if err != nil {
		return err
	}

	clusterSize := int64(v.clusterSize())
	for _, cluster := range chain {
		if err := v.dev.WriteZerosAt(clusterSize, v.clusterOffset(cluster)); err != nil {
			return err
		}
	}

	return nil
}

// allocateClusterChain links clusterCount free entries of the allocation
// table into a new chain, first-fit from cluster 2 upward, and returns the
// head cluster, or 0 when the table has fewer free entries than requested.
func (v *Volume) allocateClusterChain(clusterCount uint) uint16 {
	if clusterCount == 0 {
		return 0
	}

	var firstCluster, lastCluster uint16
	found := uint(0)

	for j := uint16(2); int(j) < len(v.fatEntries); j++ {
		if v.fatEntries[j] != 0 {
			continue
		}

		if found > 0 {
			v.fatEntries[lastCluster] = j
		} else {
			firstCluster = j
		}
		lastCluster = j
		found++

		if found == clusterCount {
			v.fatEntries[j] = v.EndOfChainMarker
			return firstCluster
		}
	}

	return 0
}
