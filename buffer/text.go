/*
Package buffer implements the text CRDT: a replicated sequence of
UTF-16 code units built out of immutable, append-only Insertions sliced
into Fragments, stored in a btree.Tree ordered by a dense FragmentID so
that every replica converges on the same visible text regardless of
the order operations arrive in.

Deletion never removes a Fragment; it records the deleting operation's
clock.Local in the fragment's tombstone set, so a concurrent delete
received twice (once locally, once echoed back through a relay) is
naturally idempotent, and ChangesSince can still report a deleted
fragment as changed since a version predating the deletion.
*/
package buffer

// Point is a zero-based (row, column) position in a Text, in UTF-16
// code units.
type Point struct {
	Row    uint32
	Column uint32
}

// Compare orders two points by row then column.
func (p Point) Compare(other Point) int {
	if p.Row != other.Row {
		if p.Row < other.Row {
			return -1
		}
		return 1
	}
	if p.Column != other.Column {
		if p.Column < other.Column {
			return -1
		}
		return 1
	}
	return 0
}

// Text is an immutable run of UTF-16 code units, the payload of one
// Insertion. newlines records the offset of every '\n' to support
// O(log n) offset<->Point conversion without re-scanning the text.
type Text struct {
	CodeUnits []uint16
	newlines  []int
}

// NewText encodes s as UTF-16 and indexes its line breaks.
func NewText(s string) *Text {
	units := utf16Encode(s)
	return newTextFromUnits(units)
}

func newTextFromUnits(units []uint16) *Text {
	t := &Text{CodeUnits: units}
	for i, u := range units {
		if u == '\n' {
			t.newlines = append(t.newlines, i)
		}
	}
	return t
}

// Len returns the text's length in UTF-16 code units.
func (t *Text) Len() int {
	if t == nil {
		return 0
	}
	return len(t.CodeUnits)
}

// String decodes the text back to a Go string.
func (t *Text) String() string {
	if t == nil {
		return ""
	}
	return utf16Decode(t.CodeUnits)
}

// PointForOffset converts an offset (in code units, relative to the
// start of this text) into a Point relative to the start of this text.
//
// Time complexity: O(log(lines))
func (t *Text) PointForOffset(offset int) Point {
	if t == nil || len(t.newlines) == 0 {
		return Point{Row: 0, Column: uint32(offset)}
	}
	// Count the newlines strictly before offset.
	lo, hi := 0, len(t.newlines)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.newlines[mid] < offset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	row := lo
	lineStart := 0
	if row > 0 {
		lineStart = t.newlines[row-1] + 1
	}
	return Point{Row: uint32(row), Column: uint32(offset - lineStart)}
}

// OffsetForPoint converts a Point relative to the start of this text
// back into an offset in code units.
func (t *Text) OffsetForPoint(p Point) int {
	if p.Row == 0 {
		return int(p.Column)
	}
	if int(p.Row)-1 >= len(t.newlines) {
		return len(t.CodeUnits)
	}
	lineStart := t.newlines[p.Row-1] + 1
	return lineStart + int(p.Column)
}

func utf16Encode(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, uint16(r))
			continue
		}
		r -= 0x10000
		out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return out
}

func utf16Decode(units []uint16) string {
	var out []rune
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) {
			u2 := units[i+1]
			if u2 >= 0xDC00 && u2 <= 0xDFFF {
				r := (rune(u-0xD800) << 10) | rune(u2-0xDC00)
				out = append(out, r+0x10000)
				i++
				continue
			}
		}
		out = append(out, rune(u))
	}
	return string(out)
}
