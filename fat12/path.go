package fat12

import (
	"strings"

	"github.com/osdev-kit/fat12img/errors"
)

// Path is one component of a parsed file path. Components form a doubly
// linked chain from the topmost directory down to the target entry; a chain
// never branches.
type Path struct {
	// Name is the component's full 11-byte 8.3 form.
	Name [11]byte

	ancestor   *Path
	descendant *Path
}

// ShortFileName returns the 8-byte name part of the component.
func (p *Path) ShortFileName() [8]byte {
	var name [8]byte
	copy(name[:], p.Name[:8])
	return name
}

// ShortFileExtension returns the 3-byte extension part of the component.
func (p *Path) ShortFileExtension() [3]byte {
	var ext [3]byte
	copy(ext[:], p.Name[8:])
	return ext
}

// Ancestor returns the component above this one, or nil for the first.
func (p *Path) Ancestor() *Path {
	return p.ancestor
}

// Descendant returns the component below this one, or nil for the last.
func (p *Path) Descendant() *Path {
	return p.descendant
}

// Last returns the final component of the chain.
func (p *Path) Last() *Path {
	cursor := p
	for cursor.descendant != nil {
		cursor = cursor.descendant
	}
	return cursor
}

// String renders the chain back into an absolute path string.
func (p *Path) String() string {
	var builder strings.Builder

	for cursor := p; cursor != nil; cursor = cursor.descendant {
		builder.WriteByte('/')
		builder.WriteString(formatShortName(cursor.ShortFileName(), cursor.ShortFileExtension()))
	}

	return builder.String()
}

// matches tells whether an entry carries the component's 8.3 name.
func (p *Path) matches(entry *DirEntry) bool {
	return entry.Name == p.ShortFileName() && entry.Extension == p.ShortFileExtension()
}

// ParsePath builds a component chain from a path string like "/DIR/FILE.BIN".
// One leading and one trailing slash are tolerated; a path naming the root
// itself fails with ErrEmptyPath.
func ParsePath(input string) (*Path, errors.DriverError) {
	input = strings.TrimPrefix(input, "/")
	if input == "" {
		return nil, errors.ErrEmptyPath
	}
	input = strings.TrimSuffix(input, "/")

	var first, previous *Path
	for _, part := range strings.Split(input, "/") {
		node := &Path{
			Name:     ConvertName(part),
			ancestor: previous,
		}
		if previous == nil {
			first = node
		} else {
			previous.descendant = node
		}
		previous = node
	}

	return first, nil
}

// PathRelation describes how two paths relate to each other.
type PathRelation int

const (
	// PathsEqual means both chains name the same entry.
	PathsEqual = PathRelation(iota)
	// PathsUnrelated means neither path contains the other.
	PathsUnrelated
	// PathsFirstIsAncestor means the first path names a directory above the
	// second.
	PathsFirstIsAncestor
	// PathsSecondIsAncestor means the second path names a directory above
	// the first.
	PathsSecondIsAncestor
)

// Relation walks both chains in lockstep while the component names match.
// The chain that runs out first names the ancestor. A nil chain stands for
// the root directory, which contains everything.
func Relation(a, b *Path) PathRelation {
	if a == nil {
		if b == nil {
			return PathsEqual
		}
		return PathsFirstIsAncestor
	}
	if b == nil {
		return PathsSecondIsAncestor
	}

	for a.Name == b.Name {
		if b.descendant == nil {
			if a.descendant == nil {
				return PathsEqual
			}
			return PathsSecondIsAncestor
		}
		if a.descendant == nil {
			return PathsFirstIsAncestor
		}

		a = a.descendant
		b = b.descendant
	}

	return PathsUnrelated
}

// ResolvePath finds the entry named by the chain below root, or nil when any
// component is missing. A nil chain resolves to root itself.
func ResolvePath(root *DirEntry, path *Path) *DirEntry {
	if path == nil {
		return root
	}

	for _, child := range root.Children() {
		if child.IsEmpty() || !path.matches(child) {
			continue
		}
		if path.descendant == nil {
			return child
		}
		return ResolvePath(child, path.descendant)
	}

	return nil
}

// CreateDirectories walks the chain below entry, descending through existing
// directories and creating the missing ones with fresh directory tables. A
// chain component that exists as a file fails with ErrNotADirectory.
func (v *Volume) CreateDirectories(entry *DirEntry, path *Path) errors.DriverError {
	for _, child := range entry.children {
		if child.IsEmpty() || !path.matches(child) {
			continue
		}
		if !child.IsDirectory() {
			return errors.ErrNotADirectory
		}
		if path.descendant == nil {
			return nil
		}
		return v.CreateDirectories(child, path.descendant)
	}

	slot := entry.firstFreeSlot()
	if slot == nil {
		return errors.ErrDirectoryFull
	}

	slot.Name = path.ShortFileName()
	slot.Extension = path.ShortFileExtension()
	slot.parent = entry
	if err := v.CreateDirectoryTable(slot); err != nil {
		return err
	}

	if path.descendant == nil {
		return nil
	}
	return v.CreateDirectories(slot, path.descendant)
}

// directoryTableEntries is the fixed slot capacity of a newly created
// subdirectory table.
const directoryTableEntries = 224

// CreateDirectoryTable turns entry into a directory: it allocates a cluster
// chain large enough for a fixed 224-slot table and seeds the "." and ".."
// entries. The dot slots carry the metadata of the directory and its parent
// with FirstCluster forced to zero.
func (v *Volume) CreateDirectoryTable(entry *DirEntry) errors.DriverError {
	tableSize := uint(directoryTableEntries * DirentSize)
	clusterCount := ceilDiv(tableSize, v.clusterSize())

	entry.children = make([]*DirEntry, directoryTableEntries)
	for i := range entry.children {
		entry.children[i] = &DirEntry{parent: entry}
	}
	entry.Attributes = AttrSubdirectory
	entry.FirstCluster = v.allocateClusterChain(clusterCount)
	if entry.FirstCluster == 0 {
		return errors.ErrImageFull
	}

	dot := entry.children[0]
	*dot = *entry
	dot.Name = dotName
	dot.Extension = blankExt
	dot.parent = entry
	dot.FirstCluster = 0
	dot.children = nil

	dotDot := entry.children[1]
	if entry.parent != nil {
		*dotDot = *entry.parent
	}
	dotDot.Name = dotDotName
	dotDot.Extension = blankExt
	dotDot.parent = entry
	dotDot.FirstCluster = 0
	dotDot.children = nil

	return nil
}

// CreateEntryFromPath returns the slot for the last component of path,
// creating intermediate directories as needed. An existing entry with the
// same name is reused, otherwise the first free slot of the parent
// directory is claimed and named.
func (v *Volume) CreateEntryFromPath(path *Path) (*DirEntry, errors.DriverError) {
	last := path.Last()
	parent := v.root

	if last != path {
		// Detach the last component so the walk below only creates the
		// directory part of the path.
		beforeLast := last.ancestor
		beforeLast.descendant = nil
		defer func() { beforeLast.descendant = last }()

		if err := v.CreateDirectories(v.root, path); err != nil {
			return nil, err
		}

		parent = ResolvePath(v.root, path)
		if parent == nil {
			return nil, errors.ErrNotFound
		}
	}

	var entry *DirEntry
	for _, child := range parent.children {
		if !child.IsEmpty() && last.matches(child) {
			entry = child
			break
		}
	}
	if entry == nil {
		entry = parent.firstFreeSlot()
	}
	if entry == nil {
		return nil, errors.ErrDirectoryFull
	}

	entry.Name = last.ShortFileName()
	entry.Extension = last.ShortFileExtension()
	entry.parent = parent

	return entry, nil
}
