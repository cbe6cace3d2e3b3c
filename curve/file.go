package curve

import (
	"errors"
	"fmt"
	"os"

	"go-midiseq/document"
	"go-midiseq/midi"
)

var ErrNoFile = errors.New("curve: no file")

// ItemElement is one curve in a document
type ItemElement struct {
	Index   int    `yaml:"index"`
	Type    string `yaml:"type"`
	Channel uint8  `yaml:"channel"`
	Param   uint8  `yaml:"param"`
	Mode    string `yaml:"mode"`
	Process string `yaml:"process"`
	Capture string `yaml:"capture"`
}

// FileElement references a curve file and lists its items
type FileElement struct {
	Filename string        `yaml:"filename"`
	Items    []ItemElement `yaml:"curve-items,omitempty"`
}

// Item maps a track of the curve file to a curve
type Item struct {
	Index   int // track in the file
	Subject Subject
	Mode    Mode
	Process bool
	Capture bool
}

// File is a curve list stored as a standard MIDI file
type File struct {
	Filename string
	Items    []Item
}

// Save writes the enabled curves of list to path, one track each, and
// returns the element describing them relative to doc.
func Save(doc *document.Document, path string, list *List, tpb uint16) (FileElement, error) {
	var el FileElement
	var seqs []*midi.Sequence

	for _, c := range list.Curves() {
		if !c.Enabled || len(c.Nodes()) == 0 {
			continue
		}
		seq := midi.NewSequence(c.Subject.String(), c.Subject.Channel, tpb)
		c.WriteSequence(seq)
		el.Items = append(el.Items, ItemElement{
			Index:   len(seqs),
			Type:    TextFromControlType(c.Subject.Type),
			Channel: c.Subject.Channel,
			Param:   c.Subject.Param,
			Mode:    TextFromMode(c.Mode),
			Process: document.TextFromBool(c.Process),
			Capture: document.TextFromBool(c.Capture),
		})
		seqs = append(seqs, seq)
	}
	if len(seqs) == 0 {
		return FileElement{}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return FileElement{}, err
	}
	defer f.Close()
	if err := midi.WriteSMF(f, tpb, seqs...); err != nil {
		return FileElement{}, fmt.Errorf("save curves: %w", err)
	}

	el.Filename = doc.AddFile(path)
	return el, nil
}

// Load reads the element. Items with an unknown type are skipped.
func (f *File) Load(doc *document.Document, el FileElement) {
	f.Filename = doc.ResolveFile(el.Filename)
	f.Items = f.Items[:0]
	for _, it := range el.Items {
		kind, ok := ControlTypeFromText(it.Type)
		if !ok {
			continue
		}
		f.Items = append(f.Items, Item{
			Index: it.Index,
			Subject: Subject{
				Type:    kind,
				Channel: it.Channel & 0x0f,
				Param:   it.Param & 0x7f,
			},
			Mode:    ModeFromText(it.Mode),
			Process: document.BoolFromText(it.Process),
			Capture: document.BoolFromText(it.Capture),
		})
	}
}

// Apply reads the file and fills list with its curves at resolution tpb,
// creating curves that do not exist yet.
func (f *File) Apply(list *List, tpb uint16) error {
	if f.Filename == "" {
		return ErrNoFile
	}
	r, err := os.Open(f.Filename)
	if err != nil {
		return err
	}
	defer r.Close()

	sm, err := midi.ReadSMF(r)
	if err != nil {
		return err
	}

	for _, it := range f.Items {
		seq := midi.NewSequence("", it.Subject.Channel, midi.Resolution(sm))
		if err := midi.LoadTrack(sm, it.Index, seq); err != nil {
			return fmt.Errorf("curve %s: %w", it.Subject, err)
		}
		c := list.FindCurve(it.Subject)
		if c == nil {
			c = New(it.Subject, it.Mode)
			list.AddCurve(c)
		}
		c.Mode = it.Mode
		c.ReadSequence(seq, tpb)
		c.Process = it.Process
		c.Capture = it.Capture
		c.Enabled = true
	}
	return nil
}
