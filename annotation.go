package atlastt

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"
)

// Annotation is a free-text operator note attached to a run, optionally
// scoped to one PCE/MFC (SPEC_FULL §3 "Operator annotation" - grounded on
// original_source/plugins/sigview's COMMENT/HISTORY provenance records).
type Annotation struct {
	Timestamp time.Time
	PCE       PCE // 0 if not scoped to a single PCE
	MFC       int64
	Value     string
}

// DecodeAnnotation decodes one annotation record: 4-byte seconds, 4-byte
// nanoseconds, 4-byte PCE, 8-byte MFC, then the free-text value to the end
// of the buffer.
func DecodeAnnotation(buffer []byte) Annotation {
	var fixed struct {
		Seconds     int32
		Nanoseconds int32
		PCE         int32
		MFC         int64
	}

	reader := bytes.NewReader(buffer)
	_ = binary.Read(reader, binary.BigEndian, &fixed)

	return Annotation{
		Timestamp: time.Unix(int64(fixed.Seconds), int64(fixed.Nanoseconds)).UTC(),
		PCE:       PCE(fixed.PCE),
		MFC:       fixed.MFC,
		Value:     strings.Trim(string(buffer[20:]), "\x00"),
	}
}

// EncodeAnnotation serializes an Annotation back into the fixed-prefix wire
// form DecodeAnnotation expects.
func EncodeAnnotation(a Annotation) []byte {
	var buf bytes.Buffer
	fixed := struct {
		Seconds     int32
		Nanoseconds int32
		PCE         int32
		MFC         int64
	}{
		Seconds:     int32(a.Timestamp.Unix()),
		Nanoseconds: int32(a.Timestamp.Nanosecond()),
		PCE:         int32(a.PCE),
		MFC:         a.MFC,
	}
	_ = binary.Write(&buf, binary.BigEndian, fixed)
	buf.WriteString(a.Value)
	return buf.Bytes()
}

// AnnotationLog holds the operator annotations collected over a run, kept in
// arrival order.
type AnnotationLog struct {
	entries []Annotation
}

// NewAnnotationLog returns an empty log.
func NewAnnotationLog() *AnnotationLog {
	return &AnnotationLog{}
}

// Add appends one annotation.
func (l *AnnotationLog) Add(a Annotation) {
	l.entries = append(l.entries, a)
}

// All returns every annotation recorded so far.
func (l *AnnotationLog) All() []Annotation {
	return l.entries
}

// ForPCE returns the annotations scoped to pce, plus any unscoped (PCE==0)
// annotations.
func (l *AnnotationLog) ForPCE(pce PCE) []Annotation {
	out := make([]Annotation, 0, len(l.entries))
	for _, a := range l.entries {
		if a.PCE == 0 || a.PCE == pce {
			out = append(out, a)
		}
	}
	return out
}
