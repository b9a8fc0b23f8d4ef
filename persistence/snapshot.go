package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/hupe1980/ivfgo/distance"
	"github.com/hupe1980/ivfgo/index/ivf"
	"github.com/hupe1980/ivfgo/metadata"
)

// Snapshot is the persisted state of one collection: its schema, every
// flushed row with its scalar document, and the built index state when the
// collection had one at save time.
type Snapshot struct {
	Name    string
	Schema  metadata.Schema
	Metric  distance.Metric
	IDs     []int64
	Vectors []float32 // len(IDs) * Schema.Dimension()
	Docs    []metadata.Document

	// Index is nil when the collection had no built index.
	Index *IndexState
}

// IndexState is the persisted part of a built IVF index.
type IndexState struct {
	Stats     ivf.Stats
	Centroids []float32
	Postings  [][]uint32
}

// Options configures snapshot encoding.
type Options struct {
	// Compression selects the payload codec.
	Compression Compression
}

// DefaultOptions are the recommended default snapshot options.
var DefaultOptions = Options{
	Compression: CompressionZstd,
}

// Write encodes snap and writes it to w with a checksummed header.
func Write(w io.Writer, snap *Snapshot, optFns ...func(o *Options)) error {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	payload, err := encodePayload(snap)
	if err != nil {
		return err
	}

	stored, codec, err := compressPayload(payload, opts.Compression)
	if err != nil {
		return err
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:], MagicNumber)
	binary.LittleEndian.PutUint32(header[4:], Version)
	header[8] = uint8(codec)
	binary.LittleEndian.PutUint64(header[12:], uint64(len(payload)))
	binary.LittleEndian.PutUint64(header[20:], uint64(len(stored)))
	binary.LittleEndian.PutUint32(header[28:], checksum(stored))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(stored); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	return nil
}

// Read decodes a snapshot previously written by Write. The payload checksum
// is verified before anything is decoded.
func Read(r io.Reader) (*Snapshot, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if binary.LittleEndian.Uint32(header[0:]) != MagicNumber {
		return nil, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint32(header[4:]) != Version {
		return nil, ErrInvalidVersion
	}

	codec := Compression(header[8])
	uncompressedLen := binary.LittleEndian.Uint64(header[12:])
	storedLen := binary.LittleEndian.Uint64(header[20:])
	sum := binary.LittleEndian.Uint32(header[28:])

	stored := make([]byte, storedLen)
	if _, err := io.ReadFull(r, stored); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	if checksum(stored) != sum {
		return nil, ErrChecksumMismatch
	}

	payload, err := decompressPayload(stored, codec, int(uncompressedLen))
	if err != nil {
		return nil, err
	}

	return decodePayload(payload)
}

func encodePayload(snap *Snapshot) ([]byte, error) {
	dim := snap.Schema.Dimension()
	rows := len(snap.IDs)
	if len(snap.Vectors) != rows*dim {
		return nil, fmt.Errorf("vector data length %d does not match %d rows of dimension %d", len(snap.Vectors), rows, dim)
	}
	if len(snap.Docs) != rows {
		return nil, fmt.Errorf("document count %d does not match %d rows", len(snap.Docs), rows)
	}

	var buf bytes.Buffer

	writeString(&buf, snap.Name)

	writeUint16(&buf, uint16(len(snap.Schema)))
	for _, field := range snap.Schema {
		writeString(&buf, field.Name)
		buf.WriteByte(uint8(field.Type))
		if field.PrimaryKey {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		writeUint32(&buf, uint32(field.MaxLength))
		writeUint32(&buf, uint32(field.Dim))
	}

	buf.WriteByte(uint8(snap.Metric))

	writeUint64(&buf, uint64(rows))
	for _, id := range snap.IDs {
		writeUint64(&buf, uint64(id))
	}
	writeFloats(&buf, snap.Vectors)

	for _, doc := range snap.Docs {
		writeDocument(&buf, doc)
	}

	if snap.Index == nil {
		buf.WriteByte(0)
		return buf.Bytes(), nil
	}
	buf.WriteByte(1)

	st := snap.Index.Stats
	writeUint32(&buf, uint32(st.Dimension))
	buf.WriteByte(uint8(st.Metric))
	writeUint32(&buf, uint32(st.NList))
	writeUint32(&buf, uint32(st.Requested))
	if st.Reduced {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	writeUint32(&buf, uint32(st.Indexed))
	writeUint32(&buf, uint32(st.Iterations))

	writeFloats(&buf, snap.Index.Centroids)
	writeUint32(&buf, uint32(len(snap.Index.Postings)))
	for _, posting := range snap.Index.Postings {
		writeUint32(&buf, uint32(len(posting)))
		for _, row := range posting {
			writeUint32(&buf, row)
		}
	}

	return buf.Bytes(), nil
}

func decodePayload(payload []byte) (*Snapshot, error) {
	rd := &payloadReader{data: payload}
	snap := &Snapshot{}

	snap.Name = rd.readString()

	fieldCount := int(rd.readUint16())
	snap.Schema = make(metadata.Schema, 0, fieldCount)
	for i := 0; i < fieldCount; i++ {
		field := metadata.FieldSchema{
			Name:       rd.readString(),
			Type:       metadata.FieldType(rd.readByte()),
			PrimaryKey: rd.readByte() == 1,
			MaxLength:  int(rd.readUint32()),
			Dim:        int(rd.readUint32()),
		}
		snap.Schema = append(snap.Schema, field)
	}

	snap.Metric = distance.Metric(rd.readByte())

	rows := int(rd.readUint64())
	dim := snap.Schema.Dimension()

	snap.IDs = make([]int64, rows)
	for i := range snap.IDs {
		snap.IDs[i] = int64(rd.readUint64())
	}
	snap.Vectors = rd.readFloats(rows * dim)

	snap.Docs = make([]metadata.Document, rows)
	for i := range snap.Docs {
		snap.Docs[i] = rd.readDocument()
	}

	if rd.readByte() == 1 {
		state := &IndexState{}
		state.Stats.Dimension = int(rd.readUint32())
		state.Stats.Metric = distance.Metric(rd.readByte())
		state.Stats.NList = int(rd.readUint32())
		state.Stats.Requested = int(rd.readUint32())
		state.Stats.Reduced = rd.readByte() == 1
		state.Stats.Indexed = int(rd.readUint32())
		state.Stats.Iterations = int(rd.readUint32())

		state.Centroids = rd.readFloats(state.Stats.NList * state.Stats.Dimension)
		clusters := int(rd.readUint32())
		state.Postings = make([][]uint32, clusters)
		for c := range state.Postings {
			count := int(rd.readUint32())
			posting := make([]uint32, count)
			for i := range posting {
				posting[i] = rd.readUint32()
			}
			state.Postings[c] = posting
		}
		snap.Index = state
	}

	if rd.err != nil {
		return nil, rd.err
	}
	return snap, nil
}

func writeDocument(buf *bytes.Buffer, doc metadata.Document) {
	fields := make([]string, 0, len(doc))
	for name := range doc {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	writeUint16(buf, uint16(len(fields)))
	for _, name := range fields {
		writeString(buf, name)
		v := doc[name]
		buf.WriteByte(uint8(v.Kind))
		switch v.Kind {
		case metadata.KindInt:
			writeUint64(buf, uint64(v.I64))
		case metadata.KindString:
			writeString(buf, v.S)
		}
	}
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeFloats(buf *bytes.Buffer, vals []float32) {
	writeUint64(buf, uint64(len(vals)))
	for _, v := range vals {
		writeUint32(buf, math.Float32bits(v))
	}
}

// payloadReader decodes the payload sequentially. The first short read
// latches an error and turns every later read into a no-op.
type payloadReader struct {
	data []byte
	off  int
	err  error
}

func (rd *payloadReader) take(n int) []byte {
	if rd.err != nil {
		return nil
	}
	if rd.off+n > len(rd.data) {
		rd.err = ErrTruncated
		return nil
	}
	b := rd.data[rd.off : rd.off+n]
	rd.off += n
	return b
}

func (rd *payloadReader) readByte() uint8 {
	b := rd.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (rd *payloadReader) readUint16() uint16 {
	b := rd.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (rd *payloadReader) readUint32() uint32 {
	b := rd.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (rd *payloadReader) readUint64() uint64 {
	b := rd.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (rd *payloadReader) readString() string {
	n := int(rd.readUint32())
	b := rd.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (rd *payloadReader) readFloats(want int) []float32 {
	n := int(rd.readUint64())
	if rd.err == nil && n != want {
		rd.err = fmt.Errorf("%w: expected %d float values, found %d", ErrTruncated, want, n)
		return nil
	}
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = math.Float32frombits(rd.readUint32())
	}
	if rd.err != nil {
		return nil
	}
	return vals
}

func (rd *payloadReader) readDocument() metadata.Document {
	fieldCount := int(rd.readUint16())
	doc := make(metadata.Document, fieldCount)
	for i := 0; i < fieldCount; i++ {
		name := rd.readString()
		kind := metadata.Kind(rd.readByte())
		switch kind {
		case metadata.KindInt:
			doc[name] = metadata.Int(int64(rd.readUint64()))
		case metadata.KindString:
			doc[name] = metadata.String(rd.readString())
		default:
			if rd.err == nil {
				rd.err = fmt.Errorf("unknown value kind %d", kind)
			}
			return doc
		}
	}
	return doc
}
