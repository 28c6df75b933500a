package fat12

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/osdev-kit/fat12img/errors"
)

// DirEntry is the in-memory expansion of a 32-byte on-disk directory record.
//
// A directory's children slice always has one element per on-disk slot of
// that directory, whether the slot is used or not. The length of the slice
// is therefore the directory's slot capacity, a contract the serializer
// depends on. Empty slots are zero-valued entries, never nil.
//
// The "." and ".." entries of a subdirectory exist as regular slots but own
// no children of their own; their contents are reached through the parent
// chain instead.
type DirEntry struct {
	Name             [8]byte
	Extension        [3]byte
	Attributes       byte
	UserAttributes   byte
	CreateTimeMillis byte
	CreateTime       uint16
	CreateDate       uint16
	OwnerID          uint16
	AccessRights     uint16
	ModifyTime       uint16
	ModifyDate       uint16
	FirstCluster     uint16
	FileSize         uint32

	parent   *DirEntry
	children []*DirEntry
}

// Parent returns the entry whose child list contains this entry, or nil for
// the root directory.
func (e *DirEntry) Parent() *DirEntry {
	return e.parent
}

// Children returns the entry's slot list. The length equals the directory's
// on-disk slot capacity. Dot entries report the slots of the directory they
// alias.
func (e *DirEntry) Children() []*DirEntry {
	if e.IsDotDir() {
		if e.Name == dotName {
			return e.parent.children
		}
		// ".." aliases the slots of the directory's parent; for a directory
		// directly under the root that is the root. A directory without a
		// parent has nothing for ".." to alias.
		if e.parent.parent == nil {
			return nil
		}
		return e.parent.parent.children
	}
	return e.children
}

// IsDirectory tells whether the entry describes a directory.
func (e *DirEntry) IsDirectory() bool {
	return e.Attributes&AttrSubdirectory != 0
}

// IsDotDir tells whether the entry is one of the "." / ".." links to the
// current or parent directory.
func (e *DirEntry) IsDotDir() bool {
	if !e.IsDirectory() {
		return false
	}
	return (e.Name == dotName || e.Name == dotDotName) && e.Extension == blankExt
}

// IsEmpty tells whether the slot holds no file or directory.
func (e *DirEntry) IsEmpty() bool {
	return e.Name[0] == 0
}

// ChildCount returns the number of used slots of a directory, dot entries
// included. It is zero for files.
func (e *DirEntry) ChildCount() int {
	if !e.IsDirectory() {
		return 0
	}

	count := 0
	for _, child := range e.children {
		if !child.IsEmpty() {
			count++
		}
	}
	return count
}

// FileCount returns the number of files in the directory and all of its
// subdirectories.
func (e *DirEntry) FileCount() int {
	if !e.IsDirectory() {
		return 0
	}

	count := 0
	for _, child := range e.children {
		if child.IsDirectory() {
			if !child.IsDotDir() {
				count += child.FileCount()
			}
		} else if !child.IsEmpty() {
			count++
		}
	}
	return count
}

// DirectoryCount returns the number of subdirectories in the directory and
// all of its subdirectories, dot entries excluded.
func (e *DirEntry) DirectoryCount() int {
	if !e.IsDirectory() {
		return 0
	}

	count := 0
	for _, child := range e.children {
		if child.IsDirectory() && !child.IsDotDir() {
			count++
			count += child.DirectoryCount()
		}
	}
	return count
}

// freeEntry releases the entry's child list and recursively those of its
// subdirectories. Dot entries are skipped; they never own children.
func (e *DirEntry) freeEntry() {
	if !e.IsDirectory() || e.IsDotDir() {
		return
	}

	for _, child := range e.children {
		child.freeEntry()
	}
	e.children = nil
}

// erase zero-fills the slot in place. The slot itself stays in its parent's
// child list.
func (e *DirEntry) erase() {
	parent := e.parent
	*e = DirEntry{}
	e.parent = parent
}

// firstFreeSlot returns the first empty slot of a directory, or nil if the
// directory is full or the entry is a file.
func (e *DirEntry) firstFreeSlot() *DirEntry {
	if !e.IsDirectory() {
		return nil
	}

	for _, child := range e.children {
		if child.IsEmpty() {
			return child
		}
	}
	return nil
}

// adoptChildren re-points the parent of every used slot in e's child list to
// newParent. Needed when a directory's record moves to a different slot.
func (e *DirEntry) adoptChildren(newParent *DirEntry) {
	for _, child := range e.children {
		if child.IsEmpty() {
			continue
		}
		child.parent = newParent
	}
}

// moveInto transfers src's record into the first free slot of dest, keeping
// src's children attached to the record's new home.
func moveInto(src, dest *DirEntry) errors.DriverError {
	slot := dest.firstFreeSlot()
	if slot == nil {
		return errors.ErrDirectoryFull
	}

	if src.IsDirectory() && !src.IsDotDir() {
		src.adoptChildren(slot)
	}

	*slot = *src
	slot.parent = dest

	src.erase()
	return nil
}

// MoveEntry removes src from its parent and makes it a child of dest. If src
// is the "." entry of a directory, every non-dot sibling of src is moved
// instead, emptying that directory into dest.
func MoveEntry(src, dest *DirEntry) errors.DriverError {
	if !dest.IsDirectory() {
		return errors.ErrNotADirectory
	}

	bulkMove := src.IsDirectory() && src.Name == dotName && src.Extension == blankExt

	entriesToMove := 1
	if bulkMove {
		entriesToMove = src.parent.ChildCount() - 2
	}

	destFreeSlots := len(dest.children) - dest.ChildCount()
	if entriesToMove > destFreeSlots {
		return errors.ErrDirectoryFull
	}

	if bulkMove {
		for _, child := range src.parent.children {
			if child.IsEmpty() || child.IsDotDir() {
				continue
			}
			if err := moveInto(child, dest); err != nil {
				return err
			}
		}
		return nil
	}

	return moveInto(src, dest)
}

// decodeDirent populates a slot from its 32-byte on-disk record.
func decodeDirent(data []byte, entry *DirEntry) {
	copy(entry.Name[:], data[0:8])
	copy(entry.Extension[:], data[8:11])
	entry.Attributes = data[11]
	entry.UserAttributes = data[12]
	entry.CreateTimeMillis = data[13]
	entry.CreateTime = binary.LittleEndian.Uint16(data[14:16])
	entry.CreateDate = binary.LittleEndian.Uint16(data[16:18])
	entry.OwnerID = binary.LittleEndian.Uint16(data[18:20])
	entry.AccessRights = binary.LittleEndian.Uint16(data[20:22])
	entry.ModifyTime = binary.LittleEndian.Uint16(data[22:24])
	entry.ModifyDate = binary.LittleEndian.Uint16(data[24:26])
	entry.FirstCluster = binary.LittleEndian.Uint16(data[26:28])
	entry.FileSize = binary.LittleEndian.Uint32(data[28:32])
}

// encodeDirent serializes a slot into its 32-byte on-disk record.
func encodeDirent(entry *DirEntry, data []byte) {
	writer := bytewriter.New(data[:DirentSize])

	writer.Write(entry.Name[:])
	writer.Write(entry.Extension[:])
	binary.Write(writer, binary.LittleEndian, entry.Attributes)
	binary.Write(writer, binary.LittleEndian, entry.UserAttributes)
	binary.Write(writer, binary.LittleEndian, entry.CreateTimeMillis)
	binary.Write(writer, binary.LittleEndian, entry.CreateTime)
	binary.Write(writer, binary.LittleEndian, entry.CreateDate)
	binary.Write(writer, binary.LittleEndian, entry.OwnerID)
	binary.Write(writer, binary.LittleEndian, entry.AccessRights)
	binary.Write(writer, binary.LittleEndian, entry.ModifyTime)
	binary.Write(writer, binary.LittleEndian, entry.ModifyDate)
	binary.Write(writer, binary.LittleEndian, entry.FirstCluster)
	binary.Write(writer, binary.LittleEndian, entry.FileSize)
}
