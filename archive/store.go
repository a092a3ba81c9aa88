package archive

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/google/uuid"
)

// DocumentFormat tags serialized archives.
const DocumentFormat = "harmonic-archive/1"

// Format selects the on-disk encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatGob  Format = "gob"
)

// FormatForPath picks the encoding from a file extension. Unknown
// extensions use JSON.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".gob") {
		return FormatGob
	}
	return FormatJSON
}

// Document is the serialized form of an archive.
type Document struct {
	Format  string    `json:"format"`
	BuildID string    `json:"build_id"`
	Created time.Time `json:"created"`
	Notes   []Record  `json:"notes"`
}

// Record is the serialized form of one note.
type Record struct {
	Pitch      int                  `json:"pitch"`
	Velocity   int                  `json:"velocity"`
	Times      []float64            `json:"times"`
	WindowSize int                  `json:"window_size"`
	Harmonics  map[int]HarmonicData `json:"harmonics"`
}

// HarmonicData wraps the amplitudes of one harmonic.
type HarmonicData struct {
	Amplitudes []float64 `json:"amplitudes"`
}

// NewRecord converts a note into its serialized form.
func NewRecord(n *NoteHarmonics) Record {
	r := Record{
		Pitch:      n.Pitch,
		Velocity:   n.Velocity,
		Times:      append([]float64(nil), n.Times...),
		WindowSize: n.WindowSize,
		Harmonics:  make(map[int]HarmonicData, len(n.Harmonics)),
	}
	for h, env := range n.Harmonics {
		r.Harmonics[h] = HarmonicData{Amplitudes: append([]float64(nil), env...)}
	}
	return r
}

// Note converts a record back into a note.
func (r Record) Note() *NoteHarmonics {
	n := &NoteHarmonics{
		Pitch:      r.Pitch,
		Velocity:   r.Velocity,
		Times:      append([]float64(nil), r.Times...),
		WindowSize: r.WindowSize,
		Harmonics:  make(map[int]Envelope, len(r.Harmonics)),
	}
	for h, hd := range r.Harmonics {
		n.Harmonics[h] = append(Envelope(nil), hd.Amplitudes...)
	}
	return n
}

// Document returns the serialized form of the archive with notes ordered by key.
func (a *Archive) Document() Document {
	doc := Document{
		Format:  DocumentFormat,
		BuildID: a.BuildID,
		Created: a.Created,
		Notes:   make([]Record, 0, a.Len()),
	}
	if doc.BuildID == "" {
		doc.BuildID = uuid.NewString()
	}
	if doc.Created.IsZero() {
		doc.Created = time.Now().UTC()
	}
	for _, k := range a.Keys() {
		doc.Notes = append(doc.Notes, NewRecord(a.notes[k]))
	}
	return doc
}

// Encode writes the archive to w.
func (a *Archive) Encode(w io.Writer, format Format) error {
	doc := a.Document()
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		return enc.Encode(doc)
	case FormatGob:
		return gob.NewEncoder(w).Encode(doc)
	default:
		return fmt.Errorf("%w: unknown archive format %q", fault.ErrConfig, format)
	}
}

// Decode reads an archive written by Encode.
func Decode(r io.Reader, format Format) (*Archive, error) {
	var doc Document
	switch format {
	case FormatJSON, "":
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode json: %v", fault.ErrDataIntegrity, err)
		}
	case FormatGob:
		if err := gob.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode gob: %v", fault.ErrDataIntegrity, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown archive format %q", fault.ErrConfig, format)
	}
	return FromDocument(doc)
}

// FromDocument validates a document and builds an archive from it.
func FromDocument(doc Document) (*Archive, error) {
	if doc.Format != DocumentFormat {
		return nil, fmt.Errorf("%w: unsupported archive format %q", fault.ErrDataIntegrity, doc.Format)
	}
	a, err := FromRecords(doc.Notes)
	if err != nil {
		return nil, err
	}
	a.BuildID = doc.BuildID
	a.Created = doc.Created
	return a, nil
}

// FromRecords builds an archive from records. Later records win key collisions.
func FromRecords(records []Record) (*Archive, error) {
	a := New()
	for i, r := range records {
		n := r.Note()
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		a.put(n)
	}
	return a, nil
}

// Save writes the archive to path, choosing the encoding by extension.
func (a *Archive) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := a.Encode(bw, FormatForPath(path)); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Load reads an archive saved with Save.
func Load(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := Decode(bufio.NewReader(f), FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Materialize turns any supported in-memory representation into an
// archive. An *Archive is returned unchanged.
func Materialize(v any) (*Archive, error) {
	switch t := v.(type) {
	case *Archive:
		if t == nil {
			return nil, fmt.Errorf("%w: nil archive", fault.ErrInputShape)
		}
		return t, nil
	case Document:
		return FromDocument(t)
	case *Document:
		if t == nil {
			return nil, fmt.Errorf("%w: nil document", fault.ErrInputShape)
		}
		return FromDocument(*t)
	case []Record:
		return FromRecords(t)
	case []*NoteHarmonics:
		a := New()
		for _, n := range t {
			if err := a.Put(n); err != nil {
				return nil, err
			}
		}
		return a, nil
	case map[NoteKey]*NoteHarmonics:
		a := New()
		keys := make([]NoteKey, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sortKeys(keys)
		for _, k := range keys {
			n := t[k]
			if err := n.Validate(); err != nil {
				return nil, err
			}
			if n.Key() != k {
				return nil, fmt.Errorf("%w: note %s stored under key %s", fault.ErrDataIntegrity, n.Key(), k)
			}
			a.put(n.Clone())
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: cannot build an archive from %T", fault.ErrInputShape, v)
	}
}
