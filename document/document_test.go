package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoolText(t *testing.T) {
	for _, s := range []string{"true", "On", "YES", "1", " true "} {
		assert.True(t, BoolFromText(s), s)
	}
	for _, s := range []string{"false", "off", "", "2", "nope"} {
		assert.False(t, BoolFromText(s), s)
	}
	assert.True(t, BoolFromText(TextFromBool(true)))
	assert.False(t, BoolFromText(TextFromBool(false)))
}

func TestNumericText(t *testing.T) {
	assert.Equal(t, 42, IntFromText(TextFromInt(42), 0))
	assert.Equal(t, 7, IntFromText("x", 7))
	assert.Equal(t, 0.75, FloatFromText(TextFromFloat(0.75), 0))
	assert.Equal(t, 1.0, FloatFromText("", 1))
}

func TestFileReferences(t *testing.T) {
	dir := t.TempDir()
	doc := New(filepath.Join(dir, "song.yml"))

	assert.Equal(t, "song", doc.Name())
	assert.Equal(t, filepath.Join(dir, "song-curves.mid"), doc.FilePath("curves.mid"))

	inside := filepath.Join(dir, "clips", "a.mid")
	ref := doc.AddFile(inside)
	assert.Equal(t, "clips/a.mid", ref)
	assert.Equal(t, inside, doc.ResolveFile(ref))

	outside := filepath.Join(os.TempDir(), "elsewhere", "b.mid")
	if rel, err := filepath.Rel(dir, outside); err == nil && strings.HasPrefix(rel, "..") {
		ref = doc.AddFile(outside)
		assert.True(t, filepath.IsAbs(ref))
		assert.Equal(t, ref, doc.ResolveFile(ref))
	}
	assert.Equal(t, "", doc.ResolveFile(""))
}

type song struct {
	Name  string   `yaml:"name"`
	Tempo float64  `yaml:"tempo"`
	Buses []string `yaml:"buses"`
}

func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "song.yml")
	want := song{Name: "demo", Tempo: 128, Buses: []string{"Master", "Drums"}}
	require.NoError(t, Save(path, want))

	var got song
	require.NoError(t, Load(path, &got))
	assert.Equal(t, want, got)

	require.NoError(t, os.WriteFile(path, []byte("name: [unterminated"), 0644))
	assert.Error(t, Load(path, &got))
}

func TestProjects(t *testing.T) {
	p := NewProjects(t.TempDir())
	clock := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	names, err := p.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	first, err := p.Save("demo", func(doc *Document) (any, error) {
		require.NoError(t, os.WriteFile(doc.FilePath("clip.mid"), []byte("x"), 0644))
		return song{Name: "first"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15_14-30-00.yml", first.Filename)

	clock = clock.Add(time.Minute)
	_, err = p.Save("demo", func(*Document) (any, error) { return song{Name: "second"}, nil })
	require.NoError(t, err)

	saves, err := p.Saves("demo")
	require.NoError(t, err)
	require.Len(t, saves, 2)
	assert.True(t, saves[0].Timestamp.After(saves[1].Timestamp), "newest first")

	var got song
	doc, err := p.Load("demo", "", &got)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
	assert.Equal(t, p.Dir("demo"), doc.Dir())

	renamed, err := p.RenameSave("demo", first.Filename, "my take/2")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15_14-30-00_my-take-2.yml", renamed)
	saves, _ = p.Saves("demo")
	assert.Equal(t, "my-take-2", saves[1].Name)

	require.NoError(t, p.DeleteSave("demo", renamed))
	_, err = os.Stat(filepath.Join(p.Dir("demo"), "2024-01-15_14-30-00-clip.mid"))
	assert.True(t, os.IsNotExist(err), "attached files go with the save")
	saves, _ = p.Saves("demo")
	assert.Len(t, saves, 1)

	require.NoError(t, p.Rename("demo", "live"))
	names, _ = p.List()
	assert.Equal(t, []string{"live"}, names)

	_, err = p.Load("empty", "", &got)
	assert.Error(t, err)

	require.NoError(t, p.Delete("live"))
	names, _ = p.List()
	assert.Empty(t, names)
}
