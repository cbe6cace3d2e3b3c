package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	saveExt       = ".yml"
	timestampForm = "2006-01-02_15-04-05"
)

// SaveInfo represents a saved project file (for listing)
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

// Projects is a folder of projects, each a folder of timestamped saves
type Projects struct {
	Root string
	now  func() time.Time
}

// NewProjects uses root as the projects folder
func NewProjects(root string) *Projects {
	return &Projects{Root: root, now: time.Now}
}

// DefaultProjects lives in ~/.config/go-midiseq/projects
func DefaultProjects() (*Projects, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewProjects(filepath.Join(home, ".config", "go-midiseq", "projects")), nil
}

// Dir returns the path to a specific project
func (p *Projects) Dir(projectName string) string {
	return filepath.Join(p.Root, projectName)
}

// List returns all project folder names
func (p *Projects) List() ([]string, error) {
	entries, err := os.ReadDir(p.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var projects []string
	for _, entry := range entries {
		if entry.IsDir() {
			projects = append(projects, entry.Name())
		}
	}

	sort.Strings(projects)
	return projects, nil
}

// parseSave splits 2024-01-15_14-30-00[_name].yml
func parseSave(filename string) (SaveInfo, bool) {
	if !strings.HasSuffix(filename, saveExt) {
		return SaveInfo{}, false
	}
	baseName := strings.TrimSuffix(filename, saveExt)

	// Timestamp is first 19 chars: 2006-01-02_15-04-05
	if len(baseName) < len(timestampForm) {
		return SaveInfo{}, false
	}
	ts, err := time.Parse(timestampForm, baseName[:len(timestampForm)])
	if err != nil {
		return SaveInfo{}, false
	}

	saveName := ""
	if len(baseName) > 20 && baseName[19] == '_' {
		saveName = baseName[20:]
	}
	return SaveInfo{Filename: filename, Name: saveName, Timestamp: ts}, true
}

// Saves returns timestamped saves for a project, newest first
func (p *Projects) Saves(projectName string) ([]SaveInfo, error) {
	entries, err := os.ReadDir(p.Dir(projectName))
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, ok := parseSave(entry.Name()); ok {
			saves = append(saves, info)
		}
	}

	sort.Slice(saves, func(i, j int) bool {
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})
	return saves, nil
}

// Save writes a new timestamped save. build receives the document so it
// can place referenced files next to it, and returns the value to encode.
func (p *Projects) Save(projectName string, build func(doc *Document) (any, error)) (SaveInfo, error) {
	if projectName == "" {
		projectName = "untitled"
	}
	dir := p.Dir(projectName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return SaveInfo{}, err
	}

	ts := p.now()
	filename := ts.Format(timestampForm) + saveExt
	doc := New(filepath.Join(dir, filename))

	v, err := build(doc)
	if err != nil {
		return SaveInfo{}, err
	}
	if err := Save(doc.Path, v); err != nil {
		return SaveInfo{}, err
	}
	info, _ := parseSave(filename)
	return info, nil
}

// Load decodes a specific save (or most recent if filename empty) into v
func (p *Projects) Load(projectName, filename string, v any) (*Document, error) {
	if filename == "" {
		saves, err := p.Saves(projectName)
		if err != nil || len(saves) == 0 {
			return nil, fmt.Errorf("no saves found in project %s", projectName)
		}
		filename = saves[0].Filename // saves are sorted newest first
	}

	doc := New(filepath.Join(p.Dir(projectName), filename))
	if err := Load(doc.Path, v); err != nil {
		return nil, err
	}
	return doc, nil
}

// Create creates a new empty project folder
func (p *Projects) Create(name string) error {
	return os.MkdirAll(p.Dir(name), 0755)
}

// DeleteSave deletes a save and the files stored alongside it
func (p *Projects) DeleteSave(projectName, filename string) error {
	info, ok := parseSave(filename)
	if !ok {
		return fmt.Errorf("invalid save filename %q", filename)
	}
	dir := p.Dir(projectName)
	if err := os.Remove(filepath.Join(dir, filename)); err != nil {
		return err
	}
	// attached files share the timestamp prefix
	attached, _ := filepath.Glob(filepath.Join(dir, info.Timestamp.Format(timestampForm)+"*"))
	for _, path := range attached {
		os.Remove(path)
	}
	return nil
}

// RenameSave changes the name part of a save, keeping its timestamp.
// Files stored alongside it are not renamed; their references stay valid
// because the document keeps its directory.
func (p *Projects) RenameSave(projectName, oldFilename, newName string) (string, error) {
	info, ok := parseSave(oldFilename)
	if !ok {
		return "", fmt.Errorf("invalid save filename %q", oldFilename)
	}
	tsStr := info.Timestamp.Format(timestampForm)

	var newFilename string
	if newName == "" {
		newFilename = tsStr + saveExt
	} else {
		newFilename = tsStr + "_" + sanitizeFilename(newName) + saveExt
	}

	dir := p.Dir(projectName)
	if err := os.Rename(filepath.Join(dir, oldFilename), filepath.Join(dir, newFilename)); err != nil {
		return "", err
	}
	return newFilename, nil
}

// Delete deletes an entire project folder
func (p *Projects) Delete(name string) error {
	return os.RemoveAll(p.Dir(name))
}

// Rename renames a project folder
func (p *Projects) Rename(oldName, newName string) error {
	return os.Rename(p.Dir(oldName), p.Dir(newName))
}

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	name = strings.NewReplacer(
		" ", "-",
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	).Replace(name)
	return name
}
