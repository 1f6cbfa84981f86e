// Package ktest reads and writes seed files: the concrete inputs that replay
// one path of a symbolic run.
//
// The format is big-endian: a 5-byte magic, a version, the replayed argument
// vector, two symbolic-argv counters (version 2 and later) and a list of
// named byte objects.
package ktest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// Version is the format version written by this package.
	Version = 3

	magic       = "KTEST"
	legacyMagic = "BOUT\n"

	// maxFieldSize bounds any single length field read from a file.
	maxFieldSize = 1 << 30
)

var (
	ErrBadMagic   = errors.New("ktest: not a seed file")
	ErrBadVersion = errors.New("ktest: unsupported version")
)

// Object is one named input.
type Object struct {
	Name  string
	Bytes []byte
}

// File is a seed.
type File struct {
	Version    uint32
	Args       []string
	SymArgvs   uint32
	SymArgvLen uint32
	Objects    []Object
}

// Object returns the first object called name.
func (f *File) Object(name string) (Object, bool) {
	for _, o := range f.Objects {
		if o.Name == name {
			return o, true
		}
	}
	return Object{}, false
}

// WriteTo encodes f to w.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	version := f.Version
	if version == 0 {
		version = Version
	}
	putUint32(&buf, version)
	putUint32(&buf, uint32(len(f.Args)))
	for _, a := range f.Args {
		putString(&buf, a)
	}
	putUint32(&buf, f.SymArgvs)
	putUint32(&buf, f.SymArgvLen)
	putUint32(&buf, uint32(len(f.Objects)))
	for _, o := range f.Objects {
		putString(&buf, o.Name)
		putUint32(&buf, uint32(len(o.Bytes)))
		buf.Write(o.Bytes)
	}
	return buf.WriteTo(w)
}

// MarshalBinary returns the encoded seed.
func (f *File) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToFile writes f to path.
func (f *File) ToFile(path string) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Read decodes a seed from r. Files with the legacy magic and versions 1 and
// 2 are accepted.
func Read(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)
	var hdr [5]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, ErrBadMagic
	}
	if string(hdr[:]) != magic && string(hdr[:]) != legacyMagic {
		return nil, ErrBadMagic
	}

	d := decoder{r: br}
	f := &File{Version: d.uint32()}
	if d.err == nil && f.Version > Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, f.Version)
	}

	n := d.count()
	for i := uint32(0); i < n && d.err == nil; i++ {
		f.Args = append(f.Args, d.readString())
	}
	if f.Version >= 2 {
		f.SymArgvs = d.uint32()
		f.SymArgvLen = d.uint32()
	}
	n = d.count()
	for i := uint32(0); i < n && d.err == nil; i++ {
		o := Object{Name: d.readString()}
		o.Bytes = d.readBytes(d.count())
		f.Objects = append(f.Objects, o)
	}
	if d.err != nil {
		return nil, fmt.Errorf("ktest: truncated file: %w", d.err)
	}
	return f, nil
}

// Unmarshal decodes a seed from data.
func Unmarshal(data []byte) (*File, error) {
	return Read(bytes.NewReader(data))
}

// FromFile reads the seed at path.
func FromFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()
	f, err := Read(fh)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return f, nil
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putString(buf *bytes.Buffer, s string) {
	putUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

// decoder reads fields until the first error, which sticks.
type decoder struct {
	r   io.Reader
	err error
}

func (d *decoder) uint32() uint32 {
	if d.err != nil {
		return 0
	}
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.err = err
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

func (d *decoder) count() uint32 {
	n := d.uint32()
	if d.err == nil && n > maxFieldSize {
		d.err = fmt.Errorf("field size %d too large", n)
		return 0
	}
	return n
}

func (d *decoder) readBytes(n uint32) []byte {
	if d.err != nil {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = err
		return nil
	}
	return b
}

func (d *decoder) readString() string {
	return string(d.readBytes(d.count()))
}
