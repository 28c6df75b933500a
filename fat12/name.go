package fat12

import (
	"strings"
)

// validShortNameChars are the characters an 8.3 name may contain: uppercase
// letters, digits, and a set of punctuation characters plus the space.
const validShortNameChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"0123456789!#$%&'()@`_-{}~ "

// sanitizeShortNameChar maps an arbitrary byte onto the 8.3 character set.
// Lowercase letters fold to uppercase; anything else invalid becomes '_'.
func sanitizeShortNameChar(c byte) byte {
	if strings.IndexByte(validShortNameChars, c) >= 0 {
		return c
	}
	if c > 0x60 && c < 0x7B {
		return c - 0x20
	}
	return '_'
}

// ConvertName converts a human-readable filename to the fixed 11-byte 8.3
// layout: eight name bytes followed by three extension bytes, space-padded.
func ConvertName(name string) [11]byte {
	var converted [11]byte
	for i := range converted {
		converted[i] = ' '
	}

	// Name part: up to the first dot, at most eight characters, leading
	// spaces omitted.
	i := 0
	for p := 0; p < len(name) && name[p] != '.' && i < 8; p++ {
		if name[p] == ' ' && i == 0 {
			continue
		}
		converted[i] = sanitizeShortNameChar(name[p])
		i++
	}

	// Extension part: everything after the first dot, at most three
	// characters, spaces omitted.
	dot := strings.IndexByte(name, '.')
	if dot < 0 {
		return converted
	}
	i = 8
	for p := dot + 1; p < len(name) && i < 11; p++ {
		if name[p] == ' ' {
			continue
		}
		converted[i] = sanitizeShortNameChar(name[p])
		i++
	}

	return converted
}

// formatShortName renders an 8.3 name pair as "NAME.EXT". Embedded spaces
// in the name part are kept, trailing padding is stripped; the dot only
// appears when the extension is non-blank.
func formatShortName(name [8]byte, ext [3]byte) string {
	var builder strings.Builder

	end := len(name)
	for end > 0 && (name[end-1] == ' ' || name[end-1] == 0) {
		end--
	}
	builder.Write(name[:end])

	if ext[0] != ' ' {
		builder.WriteByte('.')
		for i := 0; i < len(ext); i++ {
			if ext[i] == ' ' || ext[i] == 0 {
				break
			}
			builder.WriteByte(ext[i])
		}
	}

	return builder.String()
}

// FileName renders the entry's 8.3 name as "NAME.EXT".
func (e *DirEntry) FileName() string {
	return formatShortName(e.Name, e.Extension)
}

// Path returns the absolute path of the entry on its volume, with "/"
// separators and the root omitted.
func (e *DirEntry) Path() string {
	var parts []string

	for cursor := e; cursor != nil && cursor.parent != nil; cursor = cursor.parent {
		parts = append(parts, cursor.FileName())
	}

	var builder strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		builder.WriteByte('/')
		builder.WriteString(parts[i])
	}
	return builder.String()
}
