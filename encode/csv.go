// Package encode formats emitted histogram records into the CSV report
// rows the downstream ground-processing consumers expect (§4.6 C6), and
// provides the "live file" atomic-rewrite writer that maintains one CSV
// per PCE per spot.
package encode

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	stgpsr "github.com/yuin/stagparser"

	atlastt "github.com/icesat2-gsp/atlas-timetag"
)

// majorFramePeriodSeconds is the ATLAS major-frame cadence used to derive
// MBPS from a period's accumulated packet byte count.
const majorFramePeriodSeconds = 0.02

// Row is the emitted-record shape for one integration period, one column
// per exported struct field. Column order is declared once here via the
// `csv:"name=NAME,order=N"` tag and enforced by resolveColumns/Header/Values below,
// mirroring the teacher's tiledb/filters struct-tag convention.
type Row struct {
	GPS     float64 `csv:"name=GPS,order=1"`
	MFC     int64   `csv:"name=MFC,order=2"`
	PCE     int     `csv:"name=PCE,order=3"`
	Type    string  `csv:"name=TYPE,order=4"`
	RWS     float64 `csv:"name=RWS,order=5"`
	RWW     float64 `csv:"name=RWW,order=6"`
	DLBW1   float64 `csv:"name=DLBW1,order=7"`
	DLBW2   float64 `csv:"name=DLBW2,order=8"`
	DLBW3   float64 `csv:"name=DLBW3,order=9"`
	DLBW4   float64 `csv:"name=DLBW4,order=10"`
	SigRng  float64 `csv:"name=SIGRNG,order=11"`
	Bkgnd   float64 `csv:"name=BKGND,order=12"`
	SigPes  float64 `csv:"name=SIGPES,order=13"`
	SigWid  float64 `csv:"name=SIGWID,order=14"`
	HistSum int     `csv:"name=HISTSUM,order=15"`
	TxCnt   int     `csv:"name=TXCNT,order=16"`
	Mbps    float64 `csv:"name=MBPS,order=17"`
	TxErr   int     `csv:"name=TXERR,order=18"`
	WrErr   int     `csv:"name=WRERR,order=19"`
	StTdc   int     `csv:"name=STTDC,order=20"`
	WkTdc   int     `csv:"name=WKTDC,order=21"`
	RwdErr  int     `csv:"name=RWDERR,order=22"`
	SdrmErr int     `csv:"name=SDRMERR,order=23"`
	MfcErr  int64   `csv:"name=MFCERR,order=24"`
	HdrErr  int64   `csv:"name=HDRERR,order=25"`
	FmtErr  int64   `csv:"name=FMTERR,order=26"`
	DlbErr  int64   `csv:"name=DLBERR,order=27"`
	TagErr  int64   `csv:"name=TAGERR,order=28"`
	PktErr  int64   `csv:"name=PKTERR,order=29"`
	Dlbs1   float64 `csv:"name=DLBS1,order=30"`
	Dlbs2   float64 `csv:"name=DLBS2,order=31"`
	Dlbs3   float64 `csv:"name=DLBS3,order=32"`
	Dlbs4   float64 `csv:"name=DLBS4,order=33"`
}

// BuildRow assembles one Row from an emitted Histogram, reading its
// embedded PacketStats and (if present) major-frame snapshot.
//
// TXERR and WRERR are not independently decoded fields of the major-frame
// payload - they are read off StartTagFifoFull (a transmit-tag-path
// overflow flag) and DidNotFinishTransfer (a DFC transfer/write failure
// flag) respectively, the closest major-frame housekeeping bits to those
// two column names.
func BuildRow(h *atlastt.Histogram) Row {
	row := Row{
		GPS:     h.GpsAtMajorFrame,
		MFC:     h.MajorFrameCounter,
		PCE:     int(h.PCE),
		Type:    atlastt.HistogramTypeNames[h.Type],
		RWS:     h.RangeWindowStart,
		RWW:     h.RangeWindowWidth,
		SigRng:  h.SignalRange,
		Bkgnd:   h.NoiseFloor,
		SigPes:  h.SignalEnergy,
		SigWid:  h.SignalWidth,
		HistSum: h.Sum,
		TxCnt:   h.TransmitCount,
		MfcErr:  h.PktStats.MfcErr,
		HdrErr:  h.PktStats.HdrErr,
		FmtErr:  h.PktStats.FmtErr,
		DlbErr:  h.PktStats.DlbErr,
		TagErr:  h.PktStats.TagErr,
		PktErr:  h.PktStats.PktErr,
	}

	periodSeconds := float64(h.IntegrationPeriod) * majorFramePeriodSeconds
	if periodSeconds > 0 {
		row.Mbps = (float64(h.PktBytes) * 8 / 1e6) / periodSeconds
	}

	for i, dlb := range h.DownlinkBands {
		switch i {
		case 0:
			row.DLBW1, row.Dlbs1 = float64(dlb.Width), float64(dlb.Start)
		case 1:
			row.DLBW2, row.Dlbs2 = float64(dlb.Width), float64(dlb.Start)
		case 2:
			row.DLBW3, row.Dlbs3 = float64(dlb.Width), float64(dlb.Start)
		case 3:
			row.DLBW4, row.Dlbs4 = float64(dlb.Width), float64(dlb.Start)
		}
	}

	if h.MajorFramePresent && h.MajorFrame != nil {
		mf := h.MajorFrame
		row.TxErr = boolToInt(mf.StartTagFifoFull)
		row.WrErr = boolToInt(mf.DidNotFinishTransfer)
		row.StTdc = boolToInt(mf.StrongTDCPathError)
		row.WkTdc = boolToInt(mf.WeakTDCPathError)
		row.RwdErr = boolToInt(mf.RangeWindowDropout)
		row.SdrmErr = boolToInt(mf.SDRAMMismatch)
	}

	return row
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// columnSpec is one resolved `csv` tag: its CSV header name, its
// declared order, and the struct field it reads from.
type columnSpec struct {
	name  string
	order int
	field int
}

var rowColumns = resolveColumns(Row{})

// resolveColumns parses the `csv` struct tags of t via stagparser and
// returns them sorted by declared order - the single source of truth for
// the contractual column sequence in §6.
func resolveColumns(t any) []columnSpec {
	defs, err := stgpsr.ParseStruct(t, "csv")
	if err != nil {
		panic(fmt.Errorf("encode: invalid csv struct tags: %w", err))
	}

	typ := reflect.TypeOf(t)
	cols := make([]columnSpec, 0, typ.NumField())

	for i := 0; i < typ.NumField(); i++ {
		fieldName := typ.Field(i).Name
		fieldDefs := make(map[string]stgpsr.Definition)
		for _, d := range defs[fieldName] {
			fieldDefs[d.Name()] = d
		}

		nameDef, ok := fieldDefs["name"]
		if !ok {
			panic(fmt.Errorf("encode: field %s missing csv name tag", fieldName))
		}
		name, _ := nameDef.Attribute("name")

		orderDef, ok := fieldDefs["order"]
		if !ok {
			panic(fmt.Errorf("encode: field %s missing csv order tag", fieldName))
		}
		order, _ := orderDef.Attribute("order")

		cols = append(cols, columnSpec{
			name:  name.(string),
			order: int(order.(int64)),
			field: i,
		})
	}

	sort.Slice(cols, func(i, j int) bool { return cols[i].order < cols[j].order })
	return cols
}

// Header returns the contractual CSV header line, in column order.
func Header() []string {
	names := make([]string, len(rowColumns))
	for i, c := range rowColumns {
		names[i] = c.name
	}
	return names
}

// Values renders one Row into its CSV fields, in column order.
func Values(row Row) []string {
	v := reflect.ValueOf(row)
	out := make([]string, len(rowColumns))
	for i, c := range rowColumns {
		out[i] = formatField(v.Field(c.field))
	}
	return out
}

func formatField(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Float64, reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// Writer maintains one "live" CSV file per PCE/spot: Write accumulates a
// Row and atomically rewrites the whole file (write a temporary file beside
// it, then rename it over the live path) on every call, so a reader of the
// file always sees a complete,
// well-formed CSV rather than a partially written row.
type Writer struct {
	path string
	rows []Row
}

// NewWriter returns a Writer targeting path, with no rows yet.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write appends row to the accumulated set and rewrites the live file.
func (w *Writer) Write(row Row) error {
	w.rows = append(w.rows, row)

	var b strings.Builder
	b.WriteString(strings.Join(Header(), ","))
	b.WriteByte('\n')
	for _, r := range w.rows {
		b.WriteString(strings.Join(Values(r), ","))
		b.WriteByte('\n')
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.path)
}

// Rows returns the rows accumulated so far, in emission order.
func (w *Writer) Rows() []Row {
	return w.rows
}
