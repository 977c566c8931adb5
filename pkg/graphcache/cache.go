// Package graphcache serializes a built fullgraph.Graph and its condensed
// junctiongraph.Graph to a single binary file, so a server process can load
// a region once at startup instead of re-parsing OSM and re-running the
// junction condensation on every request.
package graphcache

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"

	"windloop/pkg/fullgraph"
	"windloop/pkg/geo"
	"windloop/pkg/junctiongraph"
	"windloop/pkg/network"
)

const (
	magicBytes = "WINDLOOP"
	version    = uint32(1)
)

type fileHeader struct {
	Magic          [8]byte
	Version        uint32
	NumFullNodes   uint32
	NumFullEdges   uint32
	NumGeoShape    uint32
	NumJunctions   uint32
	NumJctEdges    uint32
	NumRawEdgeRefs uint32
	NumLabelBytes  uint32
}

// Write serializes fg and jg to path, writing to a temp file and renaming
// atomically on success so a crash mid-write never leaves a corrupt cache.
func Write(path string, fg *fullgraph.Graph, jg *junctiongraph.Graph) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	cw := &crc32Writer{w: f, hash: crc32.NewIEEE()}

	labelBlob, labelOffsets := packLabels(fg.NodeLabel)
	var rawEdgeRefs []uint32
	rawEdgeFirstOut := make([]uint32, len(jg.Edges)+1)
	for i, e := range jg.Edges {
		rawEdgeFirstOut[i] = uint32(len(rawEdgeRefs))
		rawEdgeRefs = append(rawEdgeRefs, e.RawEdges...)
	}
	rawEdgeFirstOut[len(jg.Edges)] = uint32(len(rawEdgeRefs))

	hdr := fileHeader{
		Version:        version,
		NumFullNodes:   fg.NumNodes,
		NumFullEdges:   fg.NumEdges,
		NumGeoShape:    uint32(len(fg.GeoShape)),
		NumJunctions:   jg.NumJunctions,
		NumJctEdges:    uint32(len(jg.Edges)),
		NumRawEdgeRefs: uint32(len(rawEdgeRefs)),
		NumLabelBytes:  uint32(len(labelBlob)),
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(cw, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	// Full graph CSR + attributes.
	if err := writeUint32s(cw, fg.FirstOut); err != nil {
		return fmt.Errorf("write FirstOut: %w", err)
	}
	if err := writeUint32s(cw, fg.Head); err != nil {
		return fmt.Errorf("write Head: %w", err)
	}
	if err := writeFloat64s(cw, fg.Length); err != nil {
		return fmt.Errorf("write Length: %w", err)
	}
	if err := writeFloat64s(cw, fg.Bearing); err != nil {
		return fmt.Errorf("write Bearing: %w", err)
	}
	if err := writeCoords(cw, fg.NodeCoord); err != nil {
		return fmt.Errorf("write NodeCoord: %w", err)
	}
	if err := writeBools(cw, fg.NodeIsJunction); err != nil {
		return fmt.Errorf("write NodeIsJunction: %w", err)
	}
	if err := writeInt64s(cw, nodeIDsToInt64(fg.NodeID)); err != nil {
		return fmt.Errorf("write NodeID: %w", err)
	}
	if err := writeUint32s(cw, fg.GeoFirstOut); err != nil {
		return fmt.Errorf("write GeoFirstOut: %w", err)
	}
	if err := writeCoords(cw, fg.GeoShape); err != nil {
		return fmt.Errorf("write GeoShape: %w", err)
	}
	if err := writeUint32s(cw, labelOffsets); err != nil {
		return fmt.Errorf("write label offsets: %w", err)
	}
	if _, err := cw.Write(labelBlob); err != nil {
		return fmt.Errorf("write label blob: %w", err)
	}

	// Junction graph.
	if err := writeUint32s(cw, jg.FullIdx); err != nil {
		return fmt.Errorf("write FullIdx: %w", err)
	}
	if err := writeCoords(cw, jg.Coord); err != nil {
		return fmt.Errorf("write junction Coord: %w", err)
	}
	jU := make([]uint32, len(jg.Edges))
	jV := make([]uint32, len(jg.Edges))
	jLen := make([]float64, len(jg.Edges))
	jBearing := make([]float64, len(jg.Edges))
	for i, e := range jg.Edges {
		jU[i], jV[i], jLen[i], jBearing[i] = e.U, e.V, e.LengthM, e.BearingDeg
	}
	if err := writeUint32s(cw, jU); err != nil {
		return fmt.Errorf("write junction U: %w", err)
	}
	if err := writeUint32s(cw, jV); err != nil {
		return fmt.Errorf("write junction V: %w", err)
	}
	if err := writeFloat64s(cw, jLen); err != nil {
		return fmt.Errorf("write junction Length: %w", err)
	}
	if err := writeFloat64s(cw, jBearing); err != nil {
		return fmt.Errorf("write junction Bearing: %w", err)
	}
	if err := writeUint32s(cw, rawEdgeFirstOut); err != nil {
		return fmt.Errorf("write RawEdgeFirstOut: %w", err)
	}
	if err := writeUint32s(cw, rawEdgeRefs); err != nil {
		return fmt.Errorf("write RawEdgeRefs: %w", err)
	}

	checksum := cw.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Read deserializes a cache file written by Write. It reconstructs a
// fullgraph.Graph and a junctiongraph.Graph; wind effort is not persisted
// since it depends on the wind vector of a single request and must be
// recomputed by wind.Annotate after loading.
func Read(path string) (*fullgraph.Graph, *junctiongraph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	cr := &crc32Reader{r: f, hash: crc32.NewIEEE()}

	var hdr fileHeader
	if err := binary.Read(cr, binary.LittleEndian, &hdr); err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}

	fg := &fullgraph.Graph{NumNodes: hdr.NumFullNodes, NumEdges: hdr.NumFullEdges}
	var readErr error
	must := func(err error, what string) {
		if err != nil && readErr == nil {
			readErr = fmt.Errorf("read %s: %w", what, err)
		}
	}

	fg.FirstOut, err = readUint32s(cr, int(hdr.NumFullNodes+1))
	must(err, "FirstOut")
	fg.Head, err = readUint32s(cr, int(hdr.NumFullEdges))
	must(err, "Head")
	fg.Length, err = readFloat64s(cr, int(hdr.NumFullEdges))
	must(err, "Length")
	fg.Bearing, err = readFloat64s(cr, int(hdr.NumFullEdges))
	must(err, "Bearing")
	fg.NodeCoord, err = readCoords(cr, int(hdr.NumFullNodes))
	must(err, "NodeCoord")
	fg.NodeIsJunction, err = readBools(cr, int(hdr.NumFullNodes))
	must(err, "NodeIsJunction")
	ids, err := readInt64s(cr, int(hdr.NumFullNodes))
	must(err, "NodeID")
	fg.NodeID = int64sToNodeIDs(ids)
	fg.GeoFirstOut, err = readUint32s(cr, int(hdr.NumFullEdges+1))
	must(err, "GeoFirstOut")
	fg.GeoShape, err = readCoords(cr, int(hdr.NumGeoShape))
	must(err, "GeoShape")
	labelOffsets, err := readUint32s(cr, int(hdr.NumFullNodes+1))
	must(err, "label offsets")
	labelBlob := make([]byte, hdr.NumLabelBytes)
	if _, err := io.ReadFull(cr, labelBlob); err != nil {
		must(err, "label blob")
	}
	if readErr != nil {
		return nil, nil, readErr
	}
	fg.NodeLabel = unpackLabels(labelBlob, labelOffsets)

	fullgraph.AttachIndex(fg)

	jg := &junctiongraph.Graph{NumJunctions: hdr.NumJunctions}
	jg.FullIdx, err = readUint32s(cr, int(hdr.NumJunctions))
	must(err, "FullIdx")
	jg.Coord, err = readCoords(cr, int(hdr.NumJunctions))
	must(err, "junction Coord")
	jg.Label = make([]string, hdr.NumJunctions)
	for i, fullIdx := range jg.FullIdx {
		jg.Label[i] = fg.NodeLabel[fullIdx]
	}

	jU, err := readUint32s(cr, int(hdr.NumJctEdges))
	must(err, "junction U")
	jV, err := readUint32s(cr, int(hdr.NumJctEdges))
	must(err, "junction V")
	jLen, err := readFloat64s(cr, int(hdr.NumJctEdges))
	must(err, "junction Length")
	jBearing, err := readFloat64s(cr, int(hdr.NumJctEdges))
	must(err, "junction Bearing")
	rawEdgeFirstOut, err := readUint32s(cr, int(hdr.NumJctEdges+1))
	must(err, "RawEdgeFirstOut")
	rawEdgeRefs, err := readUint32s(cr, int(hdr.NumRawEdgeRefs))
	must(err, "RawEdgeRefs")
	if readErr != nil {
		return nil, nil, readErr
	}

	jg.Edges = make([]junctiongraph.Edge, hdr.NumJctEdges)
	for i := range jg.Edges {
		s, e := rawEdgeFirstOut[i], rawEdgeFirstOut[i+1]
		jg.Edges[i] = junctiongraph.Edge{
			U: jU[i], V: jV[i], LengthM: jLen[i], BearingDeg: jBearing[i],
			RawEdges: rawEdgeRefs[s:e],
			EffortUV: jLen[i], EffortVU: jLen[i],
		}
	}
	junctiongraph.RebuildAdjacency(jg)

	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != cr.hash.Sum32() {
		return nil, nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, cr.hash.Sum32())
	}

	return fg, jg, nil
}

func packLabels(labels []string) (blob []byte, offsets []uint32) {
	offsets = make([]uint32, len(labels)+1)
	for i, l := range labels {
		offsets[i] = uint32(len(blob))
		blob = append(blob, l...)
	}
	offsets[len(labels)] = uint32(len(blob))
	return blob, offsets
}

func unpackLabels(blob []byte, offsets []uint32) []string {
	if len(offsets) == 0 {
		return nil
	}
	labels := make([]string, len(offsets)-1)
	for i := range labels {
		labels[i] = string(blob[offsets[i]:offsets[i+1]])
	}
	return labels
}

func nodeIDsToInt64(ids []network.NodeID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func int64sToNodeIDs(ids []int64) []network.NodeID {
	out := make([]network.NodeID, len(ids))
	for i, id := range ids {
		out[i] = network.NodeID(id)
	}
	return out
}

func writeCoords(w io.Writer, coords []geo.Coordinate) error {
	lat := make([]float64, len(coords))
	lon := make([]float64, len(coords))
	for i, c := range coords {
		lat[i], lon[i] = c.Lat, c.Lon
	}
	if err := writeFloat64s(w, lat); err != nil {
		return err
	}
	return writeFloat64s(w, lon)
}

func readCoords(r io.Reader, n int) ([]geo.Coordinate, error) {
	lat, err := readFloat64s(r, n)
	if err != nil {
		return nil, err
	}
	lon, err := readFloat64s(r, n)
	if err != nil {
		return nil, err
	}
	coords := make([]geo.Coordinate, n)
	for i := range coords {
		coords[i] = geo.Coordinate{Lat: lat[i], Lon: lon[i]}
	}
	return coords, nil
}

func writeBools(w io.Writer, bs []bool) error {
	packed := make([]byte, len(bs))
	for i, b := range bs {
		if b {
			packed[i] = 1
		}
	}
	_, err := w.Write(packed)
	return err
}

func readBools(r io.Reader, n int) ([]bool, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	out := make([]bool, n)
	for i, b := range buf {
		out[i] = b != 0
	}
	return out, nil
}

// Zero-copy slice I/O helpers.

func writeUint32s(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeInt64s(w io.Writer, s []int64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func writeFloat64s(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readUint32s(r io.Reader, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readInt64s(r io.Reader, n int) ([]int64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]int64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readFloat64s(r io.Reader, n int) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]float64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

type crc32Writer struct {
	w    io.Writer
	hash hashWriter
}

type hashWriter interface {
	io.Writer
	Sum32() uint32
}

func (c *crc32Writer) Write(p []byte) (int, error) {
	c.hash.Write(p)
	return c.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash hashWriter
}

func (c *crc32Reader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.hash.Write(p[:n])
	}
	return n, err
}
