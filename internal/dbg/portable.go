package dbg

import (
	"encoding/binary"
	"fmt"
)

// Portable PDB / ECMA-335 metadata constants.
const (
	metadataSignature = 0x424A5342 // "BSJB"

	tableDocument               = 0x30
	tableMethodDebugInformation = 0x31
	tableLocalScope             = 0x32
	tableLocalVariable          = 0x33
	tableLocalConstant          = 0x34
	tableImportScope            = 0x35
	tableStateMachineMethod     = 0x36
	tableCustomDebugInformation = 0x37

	tableCount = 0x40
)

// sourceLinkKindGUID identifies Source Link blobs in the
// CustomDebugInformation table, in the same 32-hex form formatGUID emits.
const sourceLinkKindGUID = "CC110556A0914D389FEC25AB9A351A6A"

// hasCustomDebugInformationTables is the table group behind the
// HasCustomDebugInformation coded index (5 tag bits).
var hasCustomDebugInformationTables = []int{
	0x06, 0x04, 0x01, 0x02, 0x08, 0x09, 0x0A, 0x00, 0x0E, 0x17, 0x14, 0x11,
	0x1A, 0x1B, 0x20, 0x23, 0x26, 0x27, 0x28, 0x2A, 0x2C, 0x2B,
	tableDocument, tableLocalScope, tableLocalVariable, tableLocalConstant,
	tableImportScope,
}

// portableInfo summarizes a parsed portable PDB image.
type portableInfo struct {
	// SourceLink is the raw Source Link JSON blob, nil when absent.
	SourceLink []byte
}

// metadataCursor is a bounds-checked little-endian reader over the image.
type metadataCursor struct {
	data []byte
	pos  int
	err  error
}

func (c *metadataCursor) u8() uint8 {
	if c.err != nil || c.pos+1 > len(c.data) {
		c.fail()
		return 0
	}
	v := c.data[c.pos]
	c.pos++
	return v
}

func (c *metadataCursor) u16() uint16 {
	if c.err != nil || c.pos+2 > len(c.data) {
		c.fail()
		return 0
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v
}

func (c *metadataCursor) u32() uint32 {
	if c.err != nil || c.pos+4 > len(c.data) {
		c.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v
}

func (c *metadataCursor) u64() uint64 {
	if c.err != nil || c.pos+8 > len(c.data) {
		c.fail()
		return 0
	}
	v := binary.LittleEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v
}

func (c *metadataCursor) skip(n int) {
	if c.err != nil || n < 0 || c.pos+n > len(c.data) {
		c.fail()
		return
	}
	c.pos += n
}

func (c *metadataCursor) bytes(n int) []byte {
	if c.err != nil || n < 0 || c.pos+n > len(c.data) {
		c.fail()
		return nil
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b
}

func (c *metadataCursor) fail() {
	if c.err == nil {
		c.err = fmt.Errorf("metadata truncated at offset %d: %w", c.pos, ErrUnsupportedFormat)
	}
}

// isPortablePdb reports whether data starts with the ECMA-335 metadata
// signature.
func isPortablePdb(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) == metadataSignature
}

// parsePortablePdb reads the metadata streams of a standalone portable PDB
// image and extracts its Source Link blob, if any.
func parsePortablePdb(data []byte) (*portableInfo, error) {
	if !isPortablePdb(data) {
		return nil, fmt.Errorf("missing metadata signature: %w", ErrUnsupportedFormat)
	}

	c := &metadataCursor{data: data}
	c.skip(4) // signature
	c.skip(8) // version, reserved
	versionLen := int(c.u32())
	c.skip(versionLen)
	c.skip(2) // flags
	streamCount := int(c.u16())

	streams := make(map[string][]byte, streamCount)
	for i := 0; i < streamCount && c.err == nil; i++ {
		offset := int(c.u32())
		size := int(c.u32())

		// Stream names are NUL-terminated and padded to 4 bytes.
		nameStart := c.pos
		name := ""
		for c.err == nil {
			b := c.bytes(4)
			if b == nil {
				break
			}
			end := 4
			done := false
			for j, ch := range b {
				if ch == 0 {
					end = j
					done = true
					break
				}
			}
			name += string(b[:end])
			if done {
				break
			}
			if c.pos-nameStart > 32 {
				c.fail()
			}
		}

		if c.err == nil {
			if offset < 0 || size < 0 || offset+size > len(data) {
				c.fail()
			} else {
				streams[name] = data[offset : offset+size]
			}
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	tables, ok := streams["#~"]
	if !ok {
		return nil, fmt.Errorf("missing #~ table stream: %w", ErrUnsupportedFormat)
	}

	return parseTableStream(tables, streams["#Pdb"], streams["#GUID"], streams["#Blob"])
}

func parseTableStream(tables, pdbStream, guidHeap, blobHeap []byte) (*portableInfo, error) {
	rowCounts := make([]uint32, tableCount)

	// The #Pdb stream records row counts of type-system tables that live in
	// the owning module's metadata; they participate in index sizing here.
	if pdbStream != nil {
		pc := &metadataCursor{data: pdbStream}
		pc.skip(20) // PDB id
		pc.skip(4)  // entry point
		refMask := pc.u64()
		for t := 0; t < tableCount && pc.err == nil; t++ {
			if refMask&(1<<uint(t)) != 0 {
				rowCounts[t] = pc.u32()
			}
		}
		if pc.err != nil {
			return nil, pc.err
		}
	}

	c := &metadataCursor{data: tables}
	c.skip(6) // reserved, major, minor
	heapSizes := c.u8()
	c.skip(1) // reserved
	valid := c.u64()
	c.skip(8) // sorted

	for t := 0; t < tableCount && c.err == nil; t++ {
		if valid&(1<<uint(t)) != 0 {
			rowCounts[t] = c.u32()
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	// A standalone portable PDB only materializes the debug tables; anything
	// else means this is not the metadata shape we expect.
	if valid&^uint64(0xFF<<tableDocument) != 0 {
		return nil, fmt.Errorf("unexpected type-system tables in symbol metadata: %w", ErrUnsupportedFormat)
	}

	sz := newIndexSizes(heapSizes, rowCounts)
	info := &portableInfo{}

	// Walk present tables in order, skipping everything up to
	// CustomDebugInformation.
	for t := tableDocument; t <= tableCustomDebugInformation; t++ {
		if valid&(1<<uint(t)) == 0 {
			continue
		}
		n := int(rowCounts[t])

		if t != tableCustomDebugInformation {
			c.skip(n * sz.rowSize(t))
			continue
		}

		codedSize := sz.codedIndexSize(5, hasCustomDebugInformationTables)
		for i := 0; i < n && c.err == nil; i++ {
			c.skip(codedSize) // parent
			kind := sz.readIndex(c, sz.guid)
			value := sz.readIndex(c, sz.blob)

			g, ok := guidAt(guidHeap, kind)
			if !ok || formatGUID(g) != sourceLinkKindGUID {
				continue
			}
			if blob, ok := blobAt(blobHeap, value); ok {
				info.SourceLink = blob
			}
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	return info, nil
}

// indexSizes knows how wide heap and table indices are for one metadata
// image.
type indexSizes struct {
	str       int
	guid      int
	blob      int
	rowCounts []uint32
}

func newIndexSizes(heapSizes uint8, rowCounts []uint32) *indexSizes {
	sz := &indexSizes{str: 2, guid: 2, blob: 2, rowCounts: rowCounts}
	if heapSizes&0x1 != 0 {
		sz.str = 4
	}
	if heapSizes&0x2 != 0 {
		sz.guid = 4
	}
	if heapSizes&0x4 != 0 {
		sz.blob = 4
	}
	return sz
}

func (sz *indexSizes) tableIndexSize(table int) int {
	if sz.rowCounts[table] > 0xFFFF {
		return 4
	}
	return 2
}

func (sz *indexSizes) codedIndexSize(tagBits int, group []int) int {
	var max uint32
	for _, t := range group {
		if sz.rowCounts[t] > max {
			max = sz.rowCounts[t]
		}
	}
	if max >= 1<<(16-uint(tagBits)) {
		return 4
	}
	return 2
}

func (sz *indexSizes) readIndex(c *metadataCursor, width int) uint32 {
	if width == 4 {
		return c.u32()
	}
	return uint32(c.u16())
}

// rowSize computes the byte width of one row for the debug tables.
func (sz *indexSizes) rowSize(table int) int {
	switch table {
	case tableDocument:
		return sz.blob + sz.guid + sz.blob + sz.guid
	case tableMethodDebugInformation:
		return sz.tableIndexSize(tableDocument) + sz.blob
	case tableLocalScope:
		return sz.tableIndexSize(0x06) + sz.tableIndexSize(tableImportScope) +
			sz.tableIndexSize(tableLocalVariable) + sz.tableIndexSize(tableLocalConstant) + 8
	case tableLocalVariable:
		return 4 + sz.str
	case tableLocalConstant:
		return sz.str + sz.blob
	case tableImportScope:
		return sz.tableIndexSize(tableImportScope) + sz.blob
	case tableStateMachineMethod:
		return 2 * sz.tableIndexSize(0x06)
	case tableCustomDebugInformation:
		return sz.codedIndexSize(5, hasCustomDebugInformationTables) + sz.guid + sz.blob
	}
	return 0
}

// guidAt resolves a 1-based GUID heap index.
func guidAt(heap []byte, index uint32) ([16]byte, bool) {
	var g [16]byte
	if index == 0 {
		return g, false
	}
	offset := int(index-1) * 16
	if offset+16 > len(heap) {
		return g, false
	}
	copy(g[:], heap[offset:offset+16])
	return g, true
}

// blobAt resolves a blob heap offset to its contents, decoding the
// compressed length prefix (ECMA-335 II.24.2.4).
func blobAt(heap []byte, offset uint32) ([]byte, bool) {
	if int(offset) >= len(heap) {
		return nil, false
	}
	b := heap[offset:]

	var length, headerLen int
	switch {
	case b[0]&0x80 == 0:
		length = int(b[0])
		headerLen = 1
	case b[0]&0xC0 == 0x80:
		if len(b) < 2 {
			return nil, false
		}
		length = int(b[0]&0x3F)<<8 | int(b[1])
		headerLen = 2
	case b[0]&0xE0 == 0xC0:
		if len(b) < 4 {
			return nil, false
		}
		length = int(b[0]&0x1F)<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
		headerLen = 4
	default:
		return nil, false
	}

	if headerLen+length > len(b) {
		return nil, false
	}
	return b[headerLen : headerLen+length], true
}
