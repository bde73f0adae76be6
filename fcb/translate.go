package fcb

import (
	"strings"
)

// Flags holds the file attributes CP/M stores in the high bits of the
// three type characters.
type Flags struct {
	// ReadOnly is bit 7 of t1.
	ReadOnly bool

	// System is bit 7 of t2.
	System bool

	// Archive is bit 7 of t3.
	Archive bool
}

// apply returns the type field with our flags stored in it.
func (f Flags) apply(typ [3]uint8) [3]uint8 {
	bits := []bool{f.ReadOnly, f.System, f.Archive}
	for i, set := range bits {
		typ[i] &= 0x7F
		if set {
			typ[i] |= 0x80
		}
	}
	return typ
}

func flagsFromType(typ [3]uint8) Flags {
	return Flags{
		ReadOnly: typ[0]&0x80 != 0,
		System:   typ[1]&0x80 != 0,
		Archive:  typ[2]&0x80 != 0,
	}
}

// invalid contains the characters CP/M does not permit within a filename,
// along with those which would escape the directory upon the host.
const invalid = `.,:;=<>[]*|/\"`

// HostName converts the name and type fields of an FCB to the name of a
// file upon the host, "NAME.TYP", or just "NAME" if the type is blank.
//
// The attribute bits of the type are returned separately, they never
// appear in the returned name.  Wildcard characters are passed through,
// so the result of converting a pattern is a pattern.
func HostName(name [8]uint8, typ [3]uint8) (string, Flags) {
	n := fieldString(name[:])
	t := fieldString(typ[:])

	if t != "" {
		n += "." + t
	}
	return n, flagsFromType(typ)
}

// FromHostName converts a host filename into padded name and type fields.
//
// This is the inverse of HostName for every valid 8.3 name, see
// ValidHostName.  Longer components are truncated.
func FromHostName(host string) ([8]uint8, [3]uint8) {
	var name [8]uint8
	var typ [3]uint8

	n, t, _ := strings.Cut(strings.ToUpper(host), ".")

	copy(name[:], pad(n, 8))
	copy(typ[:], pad(t, 3))

	return name, typ
}

// ValidHostName returns true if the given host filename is something
// that a CP/M program could address: an upper-case name of one to eight
// characters with an optional type of at most three.
func ValidHostName(host string) bool {
	n, t, dot := strings.Cut(host, ".")

	if len(n) < 1 || len(n) > 8 || len(t) > 3 {
		return false
	}
	if dot && len(t) == 0 {
		return false
	}

	for _, c := range []byte(n + t) {
		if c <= ' ' || c >= 0x7F {
			return false
		}
		if c >= 'a' && c <= 'z' {
			return false
		}
		if strings.IndexByte(invalid, c) != -1 {
			return false
		}
	}
	return true
}

// Match returns true if the name and type match the given pattern.
//
// Each position is compared independently: "?" matches any single
// character, a NUL within the pattern matches anything, otherwise the
// characters must be equal ignoring case and attribute bits.
func Match(name [8]uint8, typ [3]uint8, patName [8]uint8, patType [3]uint8) bool {
	return matchField(name[:], patName[:]) && matchField(typ[:], patType[:])
}

func matchField(value []uint8, pattern []uint8) bool {
	for i, p := range pattern {
		p = upper(p & 0x7F)
		if p == '?' || p == 0x00 {
			continue
		}
		if upper(value[i]&0x7F) != p {
			return false
		}
	}
	return true
}

func upper(c uint8) uint8 {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func pad(value string, width int) string {
	for len(value) < width {
		value += " "
	}
	return value[:width]
}
