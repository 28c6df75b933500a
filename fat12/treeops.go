package fat12

import (
	"io"

	"github.com/osdev-kit/fat12img/errors"
)

// This file implements the path-level operations consumers drive the engine
// with. Each one locates entries through the path service; the mutating ones
// change the tree and the allocation table and re-serialize the metadata
// before returning.

// Move relocates the file or directory at src into the directory at dest.
// The root cannot be moved, a directory cannot be moved into its own
// subtree, and moving a non-empty directory requires recursive.
func (v *Volume) Move(src, dest string, recursive bool) errors.DriverError {
	srcPath, err := ParsePath(src)
	if err != nil {
		return err
	}

	destPath, err := ParsePath(dest)
	if err != nil && !errors.ErrEmptyPath.IsSameError(err) {
		return err
	}

	switch Relation(srcPath, destPath) {
	case PathsFirstIsAncestor:
		return errors.ErrLogic.WithMessage("cannot move a directory into its own subtree")
	case PathsEqual:
		return nil
	}

	srcEntry := ResolvePath(v.root, srcPath)
	if srcEntry == nil {
		return errors.ErrNotFound
	}

	if !recursive && srcEntry.IsDirectory() && srcEntry.ChildCount() > 2 {
		return errors.ErrIsADirectory
	}

	destEntry := ResolvePath(v.root, destPath)
	if destEntry == nil {
		return errors.ErrNotFound
	}

	if err := MoveEntry(srcEntry, destEntry); err != nil {
		return err
	}

	return v.WriteMetadata()
}

// Remove deletes the entry at path. Removing a non-empty directory requires
// recursive, which deletes its contents depth-first. With soft set the
// on-disk data is left in place.
func (v *Volume) Remove(path string, recursive, soft bool) errors.DriverError {
	parsed, err := ParsePath(path)
	if err != nil {
		return err
	}

	entry := ResolvePath(v.root, parsed)
	if entry == nil {
		return errors.ErrNotFound
	}

	if !recursive && entry.IsDirectory() && entry.ChildCount() > 2 {
		// Surfaces ErrDirectoryNotEmpty without touching the tree.
		return v.DeleteEntry(entry, soft)
	}

	if soft {
		// A soft removal leaves the entry and everything below it in place.
		return nil
	}

	return v.removeEntry(entry, soft)
}

// removeEntry deletes an entry, recursing into directories that still hold
// anything beyond their dot slots.
func (v *Volume) removeEntry(entry *DirEntry, soft bool) errors.DriverError {
	if entry.IsDirectory() && entry.ChildCount() > 2 {
		for _, child := range entry.children {
			if child.IsEmpty() || child.IsDotDir() {
				continue
			}
			if err := v.removeEntry(child, soft); err != nil {
				return err
			}
		}
	}

	return v.DeleteEntry(entry, soft)
}

// PutFile imports the byte stream src as a file at path and rewrites the
// metadata. createdUsecs is the creation timestamp in microseconds since
// the Unix epoch.
func (v *Volume) PutFile(path string, src io.ReadSeeker, createdUsecs int64) errors.DriverError {
	parsed, err := ParsePath(path)
	if err != nil {
		return err
	}

	if err := v.CreateFile(parsed, src, createdUsecs); err != nil {
		return err
	}

	return v.WriteMetadata()
}

// GetFile exports the file at path into dst. Directories are refused.
func (v *Volume) GetFile(path string, dst io.Writer) errors.DriverError {
	parsed, err := ParsePath(path)
	if err != nil {
		return err
	}

	entry := ResolvePath(v.root, parsed)
	if entry == nil {
		return errors.ErrNotFound
	}

	return v.DumpFile(entry, dst)
}

// Mkdir creates the directory named by path, including missing parents.
func (v *Volume) Mkdir(path string) errors.DriverError {
	parsed, err := ParsePath(path)
	if err != nil {
		return err
	}

	if err := v.CreateDirectories(v.root, parsed); err != nil {
		return err
	}

	return v.WriteMetadata()
}

// VolumeInfo is a snapshot of a volume's identity and usage.
type VolumeInfo struct {
	VolumeID      uint32
	VolumeLabel   string
	FileSystem    string
	PartitionSize uint
	UsedBytes     uint
	FileCount     int
	DirCount      int
}

// Info collects a snapshot of the volume.
func (v *Volume) Info() VolumeInfo {
	return VolumeInfo{
		VolumeID:      v.BPB.VolumeID,
		VolumeLabel:   string(v.BPB.VolumeLabel[:]),
		FileSystem:    string(v.BPB.FileSystem[:]),
		PartitionSize: v.PartitionSize(),
		UsedBytes:     v.UsedBytes(),
		FileCount:     v.root.FileCount(),
		DirCount:      v.root.DirectoryCount(),
	}
}
