// Package header defines the archive entry record: its field keys, its
// CBOR encoding and the framing that places records in an archive stream.
package header

import (
	"fmt"
	"strings"
	"time"
)

// Type is the kind of file-system object an entry describes.
type Type uint8

const (
	TypeRegular Type = iota + 1
	TypeDirectory
	TypeSymlink
	// TypeHardlink shares the inode of an earlier entry named by LinkTarget.
	TypeHardlink
	// TypeClone has the same content as an earlier entry named by
	// LinkTarget and carries no payload.
	TypeClone
)

var typeNames = [...]string{
	TypeRegular:   "file",
	TypeDirectory: "dir",
	TypeSymlink:   "symlink",
	TypeHardlink:  "hardlink",
	TypeClone:     "clone",
}

func (t Type) String() string {
	if t.Known() {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Known reports whether t is a type this version can materialize.
func (t Type) Known() bool {
	return t >= TypeRegular && int(t) < len(typeNames)
}

// IsLink reports whether entries of type t carry a link target.
func (t Type) IsLink() bool {
	return t == TypeSymlink || t == TypeHardlink || t == TypeClone
}

// FieldKey names one header field.
type FieldKey uint8

const (
	KeyTYP FieldKey = iota // entry type
	KeyPAT                 // relative path
	KeyDAT                 // stored payload length
	KeySIZ                 // logical size
	KeyMOD                 // permission bits
	KeyUID
	KeyGID
	KeyMTM // modification time
	KeyCTM // change time
	KeyATM // access time
	KeyLNK // link target
	KeyHSH // BLAKE3 content checksum
	numKeys
)

var keyNames = [numKeys]string{
	"TYP", "PAT", "DAT", "SIZ", "MOD", "UID", "GID", "MTM", "CTM", "ATM", "LNK", "HSH",
}

func (k FieldKey) String() string {
	if k < numKeys {
		return keyNames[k]
	}
	return fmt.Sprintf("KEY%d", uint8(k))
}

// FieldKeySet selects which fields the encoder writes.
type FieldKeySet uint32

// RequiredKeys are written for every entry regardless of the requested set.
const RequiredKeys = FieldKeySet(1<<KeyTYP | 1<<KeyPAT | 1<<KeyDAT)

// DefaultKeys is the field set used when none is configured.
var DefaultKeys = KeySet(KeyTYP, KeyPAT, KeyDAT, KeySIZ, KeyMOD, KeyUID, KeyGID, KeyMTM, KeyCTM, KeyLNK)

// AllKeys selects every known field.
var AllKeys = FieldKeySet(1<<numKeys - 1)

// KeySet builds a set from keys. Required keys are always included.
func KeySet(keys ...FieldKey) FieldKeySet {
	s := RequiredKeys
	for _, k := range keys {
		s |= 1 << k
	}
	return s
}

// Has reports whether k is in the set.
func (s FieldKeySet) Has(k FieldKey) bool { return s&(1<<k) != 0 }

// With returns s plus keys.
func (s FieldKeySet) With(keys ...FieldKey) FieldKeySet { return s | KeySet(keys...) }

func (s FieldKeySet) String() string {
	names := make([]string, 0, numKeys)
	for k := range numKeys {
		if s.Has(k) {
			names = append(names, keyNames[k])
		}
	}
	return strings.Join(names, ",")
}

// ParseKeySet parses a comma-separated list such as "TYP,PAT,MOD,MTM".
// Names are case-insensitive; "all" selects every field and "default" the
// DefaultKeys. Required keys are added even when not listed.
func ParseKeySet(s string) (FieldKeySet, error) {
	set := RequiredKeys
	for _, name := range strings.Split(s, ",") {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		switch name {
		case "ALL":
			set |= AllKeys
			continue
		case "DEFAULT":
			set |= DefaultKeys
			continue
		}
		k, ok := lookupKey(name)
		if !ok {
			return 0, fmt.Errorf("unknown field key %q", name)
		}
		set |= 1 << k
	}
	return set, nil
}

func lookupKey(name string) (FieldKey, bool) {
	for i, n := range keyNames {
		if n == name {
			return FieldKey(i), true
		}
	}
	return 0, false
}

// Set implements pflag.Value.
func (s *FieldKeySet) Set(v string) error {
	parsed, err := ParseKeySet(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Type implements pflag.Value.
func (*FieldKeySet) Type() string { return "keys" }

// UnmarshalText lets config files list keys as a string.
func (s *FieldKeySet) UnmarshalText(text []byte) error { return s.Set(string(text)) }

// Header describes one archived entry. Present records which optional
// fields were carried; absent fields hold their zero value.
type Header struct {
	ModTime    time.Time
	ChangeTime time.Time
	AccessTime time.Time
	Path       string
	LinkTarget string
	Checksum   []byte
	DataLen    int64
	Size       int64
	Present    FieldKeySet
	Mode       uint32
	UID        uint32
	GID        uint32
	Type       Type
}

// Has reports whether field k was carried by the record.
func (h *Header) Has(k FieldKey) bool { return h.Present.Has(k) }
