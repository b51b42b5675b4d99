package atlastt

import (
	"errors"
	"io"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	"github.com/icesat2-gsp/atlas-timetag/decode"
)

// Tell is a small helper for reporting the current position within a
// stream opened for reading (kept from the teacher's file.go unchanged -
// the underlying Seek semantics are identical for a segment-stream file).
func Tell(stream decode.Stream) (int64, error) {
	return stream.Seek(0, 1)
}

// SegmentSource is C8's file-backed segment-stream source: one PCE's
// length-framed ".tt" file (§6 "Segment input"), opened through TileDB's
// VFS so the same code path serves local paths and object-store URIs.
//
// Grounded on the teacher's GsfFile/OpenGSF (file.go): same
// open-via-VFS-then-wrap-in-a-generic-Stream shape, retargeted from a
// multi-record-type GSF file (requiring a byte-offset record index, hence
// FileInfo/RecordHdr) to a flat length-framed segment stream, which needs
// no such index - every frame is read in order exactly once.
type SegmentSource struct {
	URI string

	config  *tiledb.Config
	ctx     *tiledb.Context
	vfs     *tiledb.VFS
	handler *tiledb.VFSfh

	decode.Stream
}

// OpenSegmentSource opens uri for streamed reading. configURI, if non-empty,
// names a TileDB config file for accessing a permission-constrained object
// store. inMemory reads the whole file up front, trading memory for fewer
// Seek round-trips against a remote store.
func OpenSegmentSource(uri, configURI string, inMemory bool) (*SegmentSource, error) {
	var (
		config *tiledb.Config
		err    error
	)

	if configURI == "" {
		config, err = tiledb.NewConfig()
	} else {
		config, err = tiledb.LoadConfig(configURI)
	}
	if err != nil {
		return nil, errors.Join(ErrOpenSegmentSource, err)
	}

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return nil, err
	}

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return nil, err
	}

	handler, err := vfs.Open(uri, tiledb.TILEDB_VFS_READ)
	if err != nil {
		return nil, err
	}

	filesize, err := vfs.FileSize(uri)
	if err != nil {
		return nil, err
	}

	stream, err := decode.GenericStream(handler, filesize, inMemory)
	if err != nil {
		return nil, err
	}

	return &SegmentSource{
		URI:     uri,
		config:  config,
		ctx:     ctx,
		vfs:     vfs,
		handler: handler,
		Stream:  stream,
	}, nil
}

// Close releases the source's TileDB VFS handles.
func (s *SegmentSource) Close() {
	s.handler.Close()
	s.vfs.Free()
	s.ctx.Free()
	s.config.Free()
}

// ReadAll drains every length-framed segment from the source in order.
func (s *SegmentSource) ReadAll() ([]decode.Segment, error) {
	var out []decode.Segment
	for {
		seg, err := decode.ReadFrame(s.Stream)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, seg)
	}
}
