package atlastt

import (
	"errors"
	"math"
	"reflect"
	"time"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	stgpsr "github.com/yuin/stagparser"
)

// Archive is C7: an optional TileDB-backed sink for emitted Histogram
// records and periodic Correlator snapshots (§4.7). Records accumulate in
// memory between flushes - a "whole-array, dense-by-row" approach - and
// are written to disk/object store as one dense array per PCE per run.
type Archive struct {
	ctx       *tiledb.Context
	configURI string

	histRows map[PCE]*histogramRows
	corrRows []correlatorRow
}

// NewArchive constructs an Archive bound to configURI (a TileDB config
// file path, or "" for a generic local/object-store config).
func NewArchive(configURI string) (*Archive, error) {
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
		return nil, errors.Join(ErrArchiveDisabled, err)
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return nil, errors.Join(ErrArchiveDisabled, err)
	}

	return &Archive{
		ctx:       ctx,
		configURI: configURI,
		histRows:  make(map[PCE]*histogramRows),
	}, nil
}

// histogramRows is the columnar, TileDB-tagged record shape for one PCE's
// histogram stream. One struct field per archived column; each field is
// a slice, one entry appended per emitted Histogram.
type histogramRows struct {
	GpsAtMajorFrame   []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	MajorFrameCounter []int64   `tiledb:"dtype=int64,ftype=attr" filters:"zstd(level=16)"`
	Type              []int32   `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`
	RangeWindowStart  []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	RangeWindowWidth  []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	TransmitCount     []int32   `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`
	NoiseFloor        []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	SignalRange       []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	SignalWidth       []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	SignalEnergy      []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	TepEnergy         []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	PktBytes          []int32   `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`
	PktErrors         []int32   `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`
	Sum               []int32   `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`
	Bins              [][]int32 `tiledb:"dtype=int32,ftype=attr,var=true" filters:"zstd(level=16)"`
}

// correlatorRow is the columnar record shape for periodic correlator
// snapshots (§4.3, §4.7).
type correlatorRow struct {
	Timestamp          time.Time
	Asc1PpsGps         float64
	Asc1PpsAmet        uint64
	TrueRulerClkPeriod float64
	UsoFreq            float64
	TqFreq             float64
	ErrorCount         int64
}

type correlatorRows struct {
	Timestamp          []time.Time `tiledb:"dtype=datetime_ns,ftype=attr" filters:"zstd(level=16)"`
	Asc1PpsGps         []float64   `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Asc1PpsAmet        []uint64    `tiledb:"dtype=uint64,ftype=attr" filters:"zstd(level=16)"`
	TrueRulerClkPeriod []float64   `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	UsoFreq            []float64   `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	TqFreq             []float64   `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	ErrorCount         []int64     `tiledb:"dtype=int64,ftype=attr" filters:"zstd(level=16)"`
}

// AddHistogram appends one emitted Histogram to its PCE's in-memory
// buffer. The caller flushes with FlushHistograms once a run (or a
// reporting interval) completes.
func (a *Archive) AddHistogram(h *Histogram) {
	rows, ok := a.histRows[h.PCE]
	if !ok {
		rows = &histogramRows{}
		a.histRows[h.PCE] = rows
	}

	rows.GpsAtMajorFrame = append(rows.GpsAtMajorFrame, h.GpsAtMajorFrame)
	rows.MajorFrameCounter = append(rows.MajorFrameCounter, h.MajorFrameCounter)
	rows.Type = append(rows.Type, int32(h.Type))
	rows.RangeWindowStart = append(rows.RangeWindowStart, h.RangeWindowStart)
	rows.RangeWindowWidth = append(rows.RangeWindowWidth, h.RangeWindowWidth)
	rows.TransmitCount = append(rows.TransmitCount, int32(h.TransmitCount))
	rows.NoiseFloor = append(rows.NoiseFloor, h.NoiseFloor)
	rows.SignalRange = append(rows.SignalRange, h.SignalRange)
	rows.SignalWidth = append(rows.SignalWidth, h.SignalWidth)
	rows.SignalEnergy = append(rows.SignalEnergy, h.SignalEnergy)
	rows.TepEnergy = append(rows.TepEnergy, h.TepEnergy)
	rows.PktBytes = append(rows.PktBytes, int32(h.PktBytes))
	rows.PktErrors = append(rows.PktErrors, int32(h.PktErrors))
	rows.Sum = append(rows.Sum, int32(h.Sum))

	bins := make([]int32, h.Size)
	for i := 0; i < h.Size; i++ {
		bins[i] = int32(h.Bins[i])
	}
	rows.Bins = append(rows.Bins, bins)
}

// AddCorrelatorSnapshot appends one periodic correlator snapshot, stamped
// with the wall-clock time it was taken.
func (a *Archive) AddCorrelatorSnapshot(ts time.Time, snap CorrelatorSnapshot) {
	a.corrRows = append(a.corrRows, correlatorRow{
		Timestamp:          ts,
		Asc1PpsGps:         snap.Mapping.Asc1PpsGps,
		Asc1PpsAmet:        snap.Mapping.Asc1PpsAmet,
		TrueRulerClkPeriod: snap.TrueRulerClkPeriod,
		UsoFreq:            snap.UsoFreq,
		TqFreq:             snap.TqFreq,
		ErrorCount:         int64(snap.ErrorCount),
	})
}

// schemaAttrsFor establishes the tiledb attributes for a *struct with
// tiledb/filters tags (the archive's record types) by reflection, calling
// CreateAttr for each attribute field.
func schemaAttrsFor(t any, schema *tiledb.ArraySchema, ctx *tiledb.Context) error {
	var (
		field_tdb_defs map[string]stgpsr.Definition
		def            stgpsr.Definition
		status         bool
	)
	values := reflect.ValueOf(t).Elem()
	types := values.Type()
	filt_defs, _ := stgpsr.ParseStruct(t, "filters")
	tdb_defs, _ := stgpsr.ParseStruct(t, "tiledb")

	for i := 0; i < values.NumField(); i++ {
		name := types.Field(i).Name

		field_filt_defs := filt_defs[name]

		field_tdb_defs = make(map[string]stgpsr.Definition)
		for _, v := range tdb_defs[name] {
			field_tdb_defs[v.Name()] = v
		}

		def, status = field_tdb_defs["ftype"]
		if !status {
			return errors.Join(ErrCreateAttributeTdb, errors.New("ftype tag not found: "+name))
		}
		ftype, _ := def.Attribute("ftype")
		if ftype == "dim" {
			continue
		}

		if err := CreateAttr(name, field_filt_defs, field_tdb_defs, schema, ctx); err != nil {
			return errors.Join(ErrCreateAttributeTdb, err)
		}
	}
	return nil
}

// denseRowSchema builds a row-indexed dense array schema (__tiledb_rows
// dimension, positive-delta + zstd filtered) and attaches t's tagged
// fields as attributes.
func denseRowSchema(t any, ctx *tiledb.Context, nrows uint64) (*tiledb.ArraySchema, error) {
	tileSz := uint64(math.Min(float64(50000), float64(nrows)))

	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateDimTdb, err)
	}
	defer domain.Free()

	dim, err := tiledb.NewDimension(ctx, "__tiledb_rows", tiledb.TILEDB_UINT64, []uint64{0, nrows - 1}, tileSz)
	if err != nil {
		return nil, errors.Join(ErrCreateDimTdb, err)
	}
	defer dim.Free()

	dimFilters, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return nil, errors.Join(ErrAddFilters, err)
	}
	defer dimFilters.Free()

	f1, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_POSITIVE_DELTA)
	if err != nil {
		return nil, errors.Join(ErrAddFilters, err)
	}
	defer f1.Free()

	f2, err := ZstdFilter(ctx, int32(16))
	if err != nil {
		return nil, errors.Join(ErrAddFilters, err)
	}
	defer f2.Free()

	if err := AddFilters(dimFilters, f1, f2); err != nil {
		return nil, errors.Join(ErrAddFilters, err)
	}
	if err := dim.SetFilterList(dimFilters); err != nil {
		return nil, errors.Join(ErrAddFilters, err)
	}
	if err := domain.AddDimensions(dim); err != nil {
		return nil, errors.Join(ErrCreateDimTdb, err)
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}

	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}

	if err := schemaAttrsFor(t, schema, ctx); err != nil {
		return nil, err
	}

	return schema, nil
}

// writeDenseRows creates (if absent) and writes a row-indexed dense array
// at uri from the tagged record struct t, whose every field is a slice of
// length nrows (or, for var-length columns, a [][]T of length nrows).
func writeDenseRows(ctx *tiledb.Context, uri string, t any, nrows uint64) error {
	schema, err := denseRowSchema(t, ctx, nrows)
	if err != nil {
		return err
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return errors.Join(ErrCreateHistArray, err)
	}
	defer array.Free()

	if err := array.Create(schema); err != nil {
		return errors.Join(ErrCreateHistArray, err)
	}

	if err := array.Open(tiledb.TILEDB_WRITE); err != nil {
		return errors.Join(ErrWriteHistArray, err)
	}
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return errors.Join(ErrWriteHistArray, err)
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrWriteHistArray, err)
	}

	if err := setStructFieldBuffers(query, t); err != nil {
		return errors.Join(ErrWriteHistArray, err)
	}

	subarr, err := array.NewSubarray()
	if err != nil {
		return errors.Join(ErrWriteHistArray, err)
	}
	defer subarr.Free()

	rng := tiledb.MakeRange(uint64(0), nrows-1)
	if err := subarr.AddRangeByName("__tiledb_rows", rng); err != nil {
		return errors.Join(ErrWriteHistArray, err)
	}
	if err := query.SetSubarray(subarr); err != nil {
		return errors.Join(ErrWriteHistArray, err)
	}

	if err := query.Submit(); err != nil {
		return errors.Join(ErrWriteHistArray, err)
	}
	if err := query.Finalize(); err != nil {
		return errors.Join(ErrWriteHistArray, err)
	}

	md := map[string]string{"__tiledb_rows": "uint64"}
	jsn, err := JsonDumps(md)
	if err != nil {
		return err
	}
	return array.PutMetadata("__pandas_index_dims", jsn)
}

// FlushHistograms writes each PCE's buffered histogram rows to
// "<baseURI>/histograms_pce<N>" and clears the in-memory buffer.
func (a *Archive) FlushHistograms(baseURI string) error {
	for pce, rows := range a.histRows {
		n := uint64(len(rows.GpsAtMajorFrame))
		if n == 0 {
			continue
		}
		uri := baseURI + "/histograms_pce" + pceSuffix(pce)
		if err := writeDenseRows(a.ctx, uri, rows, n); err != nil {
			return errors.Join(ErrWriteHistArray, err)
		}
		delete(a.histRows, pce)
	}
	return nil
}

// FlushCorrelator writes the buffered correlator snapshots to
// "<baseURI>/correlator" and clears the in-memory buffer.
func (a *Archive) FlushCorrelator(baseURI string) error {
	n := uint64(len(a.corrRows))
	if n == 0 {
		return nil
	}

	rows := &correlatorRows{
		Timestamp:          make([]time.Time, n),
		Asc1PpsGps:         make([]float64, n),
		Asc1PpsAmet:        make([]uint64, n),
		TrueRulerClkPeriod: make([]float64, n),
		UsoFreq:            make([]float64, n),
		TqFreq:             make([]float64, n),
		ErrorCount:         make([]int64, n),
	}
	for i, r := range a.corrRows {
		rows.Timestamp[i] = r.Timestamp
		rows.Asc1PpsGps[i] = r.Asc1PpsGps
		rows.Asc1PpsAmet[i] = r.Asc1PpsAmet
		rows.TrueRulerClkPeriod[i] = r.TrueRulerClkPeriod
		rows.UsoFreq[i] = r.UsoFreq
		rows.TqFreq[i] = r.TqFreq
		rows.ErrorCount[i] = r.ErrorCount
	}

	uri := baseURI + "/correlator"
	if err := writeDenseRows(a.ctx, uri, rows, n); err != nil {
		return errors.Join(ErrWriteCorrArray, err)
	}
	a.corrRows = a.corrRows[:0]
	return nil
}

func pceSuffix(pce PCE) string {
	switch pce {
	case PCE1:
		return "1"
	case PCE2:
		return "2"
	case PCE3:
		return "3"
	default:
		return "0"
	}
}

// Close releases the archive's TileDB context.
func (a *Archive) Close() {
	a.ctx.Free()
}
