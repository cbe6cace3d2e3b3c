// Package document reads and writes session documents as YAML and
// provides the text codecs element loaders share.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a session file on disk. Files it references are stored
// relative to its directory when possible.
type Document struct {
	Path string
}

// New creates a document for path
func New(path string) *Document {
	return &Document{Path: path}
}

// Dir returns the directory holding the document
func (d *Document) Dir() string {
	return filepath.Dir(d.Path)
}

// Name returns the document file name without extension
func (d *Document) Name() string {
	base := filepath.Base(d.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// AddFile returns the reference to store for path: relative to the
// document directory when path lies under it, absolute otherwise.
func (d *Document) AddFile(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	dir, err := filepath.Abs(d.Dir())
	if err != nil {
		return abs
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return filepath.ToSlash(rel)
}

// ResolveFile turns a stored reference back into a path
func (d *Document) ResolveFile(ref string) string {
	if ref == "" || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(d.Dir(), filepath.FromSlash(ref))
}

// FilePath returns a path next to the document named after it, e.g.
// song.yml + "curves.mid" -> song-curves.mid
func (d *Document) FilePath(suffix string) string {
	return filepath.Join(d.Dir(), d.Name()+"-"+suffix)
}

// Load decodes the YAML document at path into v
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Save encodes v as YAML to path, creating its directory
func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// TextFromBool encodes a flag
func TextFromBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// BoolFromText decodes a flag. true, on, yes and 1 are true.
func BoolFromText(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "yes", "1":
		return true
	}
	return false
}

func TextFromInt(i int) string {
	return strconv.Itoa(i)
}

// IntFromText decodes an integer, returning def when s is not one
func IntFromText(s string, def int) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return i
}

func TextFromFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FloatFromText decodes a float, returning def when s is not one
func FloatFromText(s string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return f
}
