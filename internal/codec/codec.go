// Package codec wraps byte streams with compression and decompression.
//
// Writers compress into a wrapped WriteStream and flush their tail on Close.
// Readers detect the algorithm from the leading magic bytes, so an archive
// needs no metadata beyond its own bytes to be decoded.
package codec

import (
	"fmt"
	"strings"
)

// Algorithm identifies a compression format. Values are stable.
type Algorithm uint8

const (
	None Algorithm = iota
	Zlib
	Gzip
	Zstd
	LZ4
	XZ
)

// Default is the algorithm used when none is configured.
const Default = Zlib

// DefaultLevel selects each algorithm's own default level.
const DefaultLevel = 0

var algorithmNames = [...]string{
	None: "none",
	Zlib: "zlib",
	Gzip: "gzip",
	Zstd: "zstd",
	LZ4:  "lz4",
	XZ:   "xz",
}

func (a Algorithm) String() string {
	if int(a) < len(algorithmNames) {
		return algorithmNames[a]
	}
	return fmt.Sprintf("unknown(%d)", a)
}

// Algorithms lists every supported algorithm.
func Algorithms() []Algorithm {
	return []Algorithm{None, Zlib, Gzip, Zstd, LZ4, XZ}
}

// Parse parses an algorithm name (case-insensitive).
func Parse(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range algorithmNames {
		if n == name {
			return Algorithm(i), nil
		}
	}
	switch name {
	case "", "default":
		return Default, nil
	case "zst":
		return Zstd, nil
	case "gz":
		return Gzip, nil
	}
	return 0, fmt.Errorf("unknown codec %q (use %s)", name, strings.Join(algorithmNames[:], ", "))
}

// Set implements pflag.Value.
func (a *Algorithm) Set(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Type implements pflag.Value.
func (*Algorithm) Type() string { return "codec" }

// UnmarshalText lets config files name the algorithm.
func (a *Algorithm) UnmarshalText(text []byte) error {
	return a.Set(string(text))
}
