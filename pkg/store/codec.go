package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/0xmhha/folder-search/pkg/catalog"
)

const (
	catalogMagic   = "BRFC"
	catalogVersion = uint16(1)

	// maxPrealloc caps the entry slice allocated from an untrusted total.
	maxPrealloc = 1 << 16
)

// errMismatch marks a well-formed file that belongs to another version or root.
var errMismatch = errors.New("catalog file does not match request")

// encodeCatalog writes the BRFC layout:
//
//	magic[4] version:u16 root_len:u32 root built_at:u64 total:u32
//	total * (name_len:u16 name rel_len:u16 rel abs_len:u16 abs parent:i32 mtime:i64)
//
// All integers are little-endian.
func encodeCatalog(w io.Writer, root string, builtAt time.Time, entries []catalog.Entry) error {
	if uint64(len(entries)) > math.MaxUint32 {
		return fmt.Errorf("too many entries: %d", len(entries))
	}

	bw := &binaryWriter{w: w}
	bw.writeBytes([]byte(catalogMagic))
	bw.writeU16(catalogVersion)
	bw.writeU32(uint32(len(root)))
	bw.writeBytes([]byte(root))
	bw.writeU64(uint64(builtAt.Unix()))
	bw.writeU32(uint32(len(entries)))

	for i := range entries {
		e := &entries[i]
		for _, s := range []string{e.Name, e.RelPath, e.AbsPath} {
			if len(s) > math.MaxUint16 {
				return fmt.Errorf("entry %d: component too long (%d bytes)", i, len(s))
			}
			bw.writeU16(uint16(len(s)))
			bw.writeBytes([]byte(s))
		}
		bw.writeI32(e.ParentIndex)
		bw.writeI64(e.Mtime)
	}

	return bw.err
}

// decodeCatalog reads a BRFC stream written for wantRoot.
//
// It returns errMismatch for a foreign version or root, and an error
// wrapping ErrCatalogCorrupt for anything malformed.
func decodeCatalog(r io.Reader, wantRoot string) (time.Time, []catalog.Entry, error) {
	br := &binaryReader{r: bufio.NewReader(r)}

	magic := br.readBytes(len(catalogMagic))
	version := br.readU16()
	if br.err != nil {
		return time.Time{}, nil, corrupt("header", br.err)
	}
	if string(magic) != catalogMagic || version != catalogVersion {
		return time.Time{}, nil, errMismatch
	}

	rootLen := br.readU32()
	if br.err != nil {
		return time.Time{}, nil, corrupt("header", br.err)
	}
	if int(rootLen) != len(wantRoot) {
		return time.Time{}, nil, errMismatch
	}
	root := br.readBytes(int(rootLen))
	if br.err != nil {
		return time.Time{}, nil, corrupt("root path", br.err)
	}
	if string(root) != wantRoot {
		return time.Time{}, nil, errMismatch
	}

	builtAt := br.readU64()
	total := br.readU32()
	if br.err != nil {
		return time.Time{}, nil, corrupt("header", br.err)
	}
	if builtAt > math.MaxInt64 {
		return time.Time{}, nil, corrupt("header", fmt.Errorf("built_at %d out of range", builtAt))
	}

	entries := make([]catalog.Entry, 0, min(int(total), maxPrealloc))
	for i := uint32(0); i < total; i++ {
		name := string(br.readBytes(int(br.readU16())))
		rel := string(br.readBytes(int(br.readU16())))
		abs := string(br.readBytes(int(br.readU16())))
		parent := br.readI32()
		mtime := br.readI64()
		if br.err != nil {
			return time.Time{}, nil, corrupt(fmt.Sprintf("record %d", i), br.err)
		}
		entries = append(entries, catalog.MakeEntry(name, rel, abs, parent, mtime))
	}

	if _, err := br.r.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		return time.Time{}, nil, corrupt("trailer", errors.New("trailing bytes after last record"))
	}

	return time.Unix(int64(builtAt), 0), entries, nil
}

func corrupt(where string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %s: %v", ErrCatalogCorrupt, where, err)
}

// binaryWriter wraps an io.Writer and accumulates the first error.
type binaryWriter struct {
	w   io.Writer
	err error
}

func (bw *binaryWriter) write(v interface{}) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binaryWriter) writeBytes(b []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(b)
}

func (bw *binaryWriter) writeU16(v uint16) { bw.write(v) }
func (bw *binaryWriter) writeU32(v uint32) { bw.write(v) }
func (bw *binaryWriter) writeU64(v uint64) { bw.write(v) }
func (bw *binaryWriter) writeI32(v int32)  { bw.write(v) }
func (bw *binaryWriter) writeI64(v int64)  { bw.write(v) }

// binaryReader wraps an io.Reader and accumulates the first error.
type binaryReader struct {
	r   io.Reader
	err error
}

func (br *binaryReader) read(v interface{}) {
	if br.err != nil {
		return
	}
	br.err = binary.Read(br.r, binary.LittleEndian, v)
}

func (br *binaryReader) readBytes(n int) []byte {
	if br.err != nil || n == 0 {
		return nil
	}
	b := make([]byte, n)
	_, br.err = io.ReadFull(br.r, b)
	return b
}

func (br *binaryReader) readU16() uint16 {
	var v uint16
	br.read(&v)
	return v
}

func (br *binaryReader) readU32() uint32 {
	var v uint32
	br.read(&v)
	return v
}

func (br *binaryReader) readU64() uint64 {
	var v uint64
	br.read(&v)
	return v
}

func (br *binaryReader) readI32() int32 {
	var v int32
	br.read(&v)
	return v
}

func (br *binaryReader) readI64() int64 {
	var v int64
	br.read(&v)
	return v
}
