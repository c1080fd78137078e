// Package tiffio writes multi-directory little-endian TIFF streams with
// the small set of libtiff-style primitives the DNG container needs:
// per-directory field setters, sequential scanline writes, directory
// checkpoint/finalize, in-place offset patch-up of an earlier directory,
// and unlinking a directory from the IFD chain.
//
// Image data is stored as a single strip per directory. Directories are
// linked into the next-IFD chain in the order they are written.
package tiffio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

var le = binary.LittleEndian

// ErrWrite wraps failures of the underlying sink.
var ErrWrite = errors.New("tiff write error")

type field struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte // serialized, little endian
}

// dir records a materialized directory so its inline values and chain
// pointer can be rewritten later.
type dir struct {
	offset     uint32
	entries    []field
	nextPtrPos uint32
	next       uint32
}

// Writer serializes one TIFF stream.
type Writer struct {
	w    io.WriteSeeker
	dirs []*dir

	fields  map[uint16]field
	rows    [][]byte
	noStrip bool // EXIF-style directory without image data

	checkpointed *dir // current directory, if already materialized

	patching *dir  // non-nil between SetDirectory and WriteDirectory
	patchErr error // first failure of the current patch session
}

// NewWriter writes the TIFF header and returns a writer positioned at the
// first directory.
func NewWriter(w io.WriteSeeker) (*Writer, error) {
	tw := &Writer{w: w, fields: make(map[uint16]field)}
	hdr := []byte{'I', 'I', 42, 0, 0, 0, 0, 0} // IFD0 offset patched on first write
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return tw, nil
}

func (tw *Writer) setField(tag, typ uint16, count uint32, value []byte) {
	f := field{tag: tag, typ: typ, count: count, value: value}
	if tw.patching != nil {
		// Patch mode: rewrite the value of an existing entry in place.
		// Failures are held until WriteDirectory ends the session.
		if err := tw.patchEntry(f); err != nil && tw.patchErr == nil {
			tw.patchErr = err
		}
		return
	}
	if tw.checkpointed != nil {
		// The layout is already on disk; only same-size value rewrites
		// could be honoured, and the container protocol never needs them.
		return
	}
	tw.fields[tag] = f
}

// SetShort sets a SHORT field.
func (tw *Writer) SetShort(tag uint16, vals ...uint16) {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		le.PutUint16(b[2*i:], v)
	}
	tw.setField(tag, TypeShort, uint32(len(vals)), b)
}

// SetLong sets a LONG field.
func (tw *Writer) SetLong(tag uint16, vals ...uint32) {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		le.PutUint32(b[4*i:], v)
	}
	tw.setField(tag, TypeLong, uint32(len(vals)), b)
}

// SetByte sets a BYTE field.
func (tw *Writer) SetByte(tag uint16, vals ...byte) {
	tw.setField(tag, TypeByte, uint32(len(vals)), append([]byte(nil), vals...))
}

// SetUndefined sets an UNDEFINED field.
func (tw *Writer) SetUndefined(tag uint16, vals ...byte) {
	tw.setField(tag, TypeUndefined, uint32(len(vals)), append([]byte(nil), vals...))
}

// SetASCII sets a NUL-terminated ASCII field.
func (tw *Writer) SetASCII(tag uint16, s string) {
	b := append([]byte(s), 0)
	tw.setField(tag, TypeASCII, uint32(len(b)), b)
}

// SetRational sets an unsigned RATIONAL field. +Inf encodes as
// 0xFFFFFFFF/1 per the EXIF convention.
func (tw *Writer) SetRational(tag uint16, vals ...float64) {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		var num, den uint32
		if math.IsInf(v, 1) {
			num, den = 0xFFFFFFFF, 1
		} else {
			n, d := floatToRational(v)
			if n < 0 {
				n = 0
			}
			num, den = uint32(n), uint32(d)
		}
		le.PutUint32(b[8*i:], num)
		le.PutUint32(b[8*i+4:], den)
	}
	tw.setField(tag, TypeRational, uint32(len(vals)), b)
}

// SetSRational sets a signed SRATIONAL field.
func (tw *Writer) SetSRational(tag uint16, vals ...float64) {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		n, d := floatToRational(v)
		le.PutUint32(b[8*i:], uint32(int32(n)))
		le.PutUint32(b[8*i+4:], uint32(int32(d)))
	}
	tw.setField(tag, TypeSRational, uint32(len(vals)), b)
}

// WriteScanline appends one row of image data to the current directory.
// Rows must be written in order starting at 0.
func (tw *Writer) WriteScanline(buf []byte, row int) error {
	if tw.patching != nil || tw.checkpointed != nil {
		return fmt.Errorf("%w: scanline write on closed directory", ErrWrite)
	}
	if row != len(tw.rows) {
		return fmt.Errorf("%w: scanline %d out of order (next is %d)", ErrWrite, row, len(tw.rows))
	}
	tw.rows = append(tw.rows, append([]byte(nil), buf...))
	return nil
}

// CreateEXIFDirectory finalizes nothing but marks the directory under
// construction as image-less, so no strip fields are synthesized.
func (tw *Writer) CreateEXIFDirectory() {
	tw.noStrip = true
}

// CheckpointDirectory materializes the current directory at the end of the
// stream so CurrentDirOffset becomes valid. The directory stays current
// until WriteDirectory.
func (tw *Writer) CheckpointDirectory() error {
	if tw.checkpointed != nil {
		return nil
	}
	d, err := tw.materialize()
	if err != nil {
		return err
	}
	tw.checkpointed = d
	return nil
}

// CurrentDirOffset returns the stream offset of the checkpointed current
// directory.
func (tw *Writer) CurrentDirOffset() uint32 {
	if tw.checkpointed == nil {
		return 0
	}
	return tw.checkpointed.offset
}

// WriteDirectory finalizes the current directory (materializing it if it
// was not checkpointed) and begins a new, empty one. In patch mode it ends
// the patch session instead.
func (tw *Writer) WriteDirectory() error {
	if tw.patching != nil {
		err := tw.patchErr
		tw.patching = nil
		tw.patchErr = nil
		return err
	}
	if tw.checkpointed == nil {
		if _, err := tw.materialize(); err != nil {
			return err
		}
	}
	tw.fields = make(map[uint16]field)
	tw.rows = nil
	tw.noStrip = false
	tw.checkpointed = nil
	return nil
}

// SetDirectory re-opens an already written directory for in-place value
// patching. Only the n-th (0-based, chain order) directory's existing
// entries may be updated, with values of at most 4 bytes.
func (tw *Writer) SetDirectory(n int) error {
	if n < 0 || n >= len(tw.dirs) {
		return fmt.Errorf("%w: no directory %d", ErrWrite, n)
	}
	tw.patching = tw.dirs[n]
	return nil
}

// UnlinkDirectory removes the n-th (0-based) directory from the next-IFD
// chain, leaving its bytes in place so pointer tags can still reach it.
func (tw *Writer) UnlinkDirectory(n int) error {
	if n < 0 || n >= len(tw.dirs) {
		return fmt.Errorf("%w: no directory %d", ErrWrite, n)
	}
	victim := tw.dirs[n]
	prevPtrPos := uint32(4) // header IFD0 pointer
	if n > 0 {
		prevPtrPos = tw.dirs[n-1].nextPtrPos
	}
	if err := tw.writeAt(prevPtrPos, u32(victim.next)); err != nil {
		return err
	}
	if n > 0 {
		tw.dirs[n-1].next = victim.next
	}
	tw.dirs = append(tw.dirs[:n], tw.dirs[n+1:]...)
	return nil
}

// Close finalizes a still-open directory, if any.
func (tw *Writer) Close() error {
	if tw.patching == nil && tw.checkpointed == nil && len(tw.fields) == 0 {
		return nil
	}
	return tw.WriteDirectory()
}

// patchEntry rewrites the 12-byte IFD entry for f.tag inside the directory
// being patched. Only existing entries with inline values can be patched.
func (tw *Writer) patchEntry(f field) error {
	d := tw.patching
	for i := range d.entries {
		if d.entries[i].tag != f.tag {
			continue
		}
		if len(f.value) > 4 || len(d.entries[i].value) > 4 {
			return fmt.Errorf("%w: tag %d value is out of line and immutable", ErrWrite, f.tag)
		}
		entryPos := d.offset + 2 + uint32(i)*12
		var b [12]byte
		le.PutUint16(b[0:], f.tag)
		le.PutUint16(b[2:], f.typ)
		le.PutUint32(b[4:], f.count)
		copy(b[8:], padValue(f.value))
		if err := tw.writeAt(entryPos, b[:]); err != nil {
			return err
		}
		d.entries[i].typ = f.typ
		d.entries[i].count = f.count
		d.entries[i].value = f.value
		return nil
	}
	return fmt.Errorf("%w: directory has no entry for tag %d", ErrWrite, f.tag)
}

// materialize lays the current directory out at the end of the stream:
// strip data, entry table, out-of-line values, and chain linkage.
func (tw *Writer) materialize() (*dir, error) {
	if len(tw.rows) > 0 && !tw.noStrip {
		var total uint32
		for _, r := range tw.rows {
			total += uint32(len(r))
		}
		stripOff, err := tw.alignEnd()
		if err != nil {
			return nil, err
		}
		for _, r := range tw.rows {
			if _, err := tw.w.Write(r); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrWrite, err)
			}
		}
		tw.SetLong(TagStripOffsets, stripOff)
		tw.SetLong(TagStripByteCounts, total)
		tw.SetLong(TagRowsPerStrip, uint32(len(tw.rows)))
	}

	entries := make([]field, 0, len(tw.fields))
	for _, f := range tw.fields {
		entries = append(entries, f)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdOff, err := tw.alignEnd()
	if err != nil {
		return nil, err
	}
	n := uint32(len(entries))
	valueOff := ifdOff + 2 + 12*n + 4

	var table []byte
	table = le.AppendUint16(table, uint16(n))
	var overflow []byte
	for _, f := range entries {
		table = le.AppendUint16(table, f.tag)
		table = le.AppendUint16(table, f.typ)
		table = le.AppendUint32(table, f.count)
		if len(f.value) <= 4 {
			table = append(table, padValue(f.value)...)
		} else {
			table = le.AppendUint32(table, valueOff)
			overflow = append(overflow, f.value...)
			if len(f.value)%2 != 0 {
				overflow = append(overflow, 0)
			}
			valueOff += uint32(len(f.value) + len(f.value)%2)
		}
	}
	table = le.AppendUint32(table, 0) // next IFD, linked below
	table = append(table, overflow...)
	if _, err := tw.w.Write(table); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	d := &dir{offset: ifdOff, entries: entries, nextPtrPos: ifdOff + 2 + 12*n}
	prevPtrPos := uint32(4)
	if len(tw.dirs) > 0 {
		prevPtrPos = tw.dirs[len(tw.dirs)-1].nextPtrPos
	}
	if err := tw.writeAt(prevPtrPos, u32(ifdOff)); err != nil {
		return nil, err
	}
	if len(tw.dirs) > 0 {
		tw.dirs[len(tw.dirs)-1].next = ifdOff
	}
	tw.dirs = append(tw.dirs, d)
	return d, nil
}

// alignEnd seeks to the end of the stream, padding to an even offset.
func (tw *Writer) alignEnd() (uint32, error) {
	pos, err := tw.w.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if pos%2 != 0 {
		if _, err := tw.w.Write([]byte{0}); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrWrite, err)
		}
		pos++
	}
	return uint32(pos), nil
}

func (tw *Writer) writeAt(pos uint32, b []byte) error {
	if _, err := tw.w.Seek(int64(pos), io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if _, err := tw.w.Write(b); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func padValue(v []byte) []byte {
	b := make([]byte, 4)
	copy(b, v)
	return b
}

func u32(v uint32) []byte {
	var b [4]byte
	le.PutUint32(b[:], v)
	return b[:]
}

// floatToRational approximates v by continued fractions, keeping the
// denominator below 2^26.
func floatToRational(v float64) (int64, int64) {
	if v == 0 || math.IsNaN(v) {
		return 0, 1
	}
	const maxDenom = int64(1) << 26
	sign := int64(1)
	if v < 0 {
		sign = -1
		v = -v
	}
	z := v
	n0, d0 := int64(0), int64(1)
	n1, d1 := int64(1), int64(0)
	for i := 0; i < 50; i++ {
		a := int64(z)
		n2 := n1*a + n0
		d2 := d1*a + d0
		if d2 > maxDenom {
			break
		}
		n0, d0 = n1, d1
		n1, d1 = n2, d2
		if z == float64(a) {
			break
		}
		z = 1.0 / (z - float64(a))
	}
	if d1 == 0 {
		return 0, 1
	}
	return sign * n1, d1
}
