package midi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
)

func TestRouterOpensLazilyOnce(t *testing.T) {
	opened := map[string]int{}
	var sent []gomidi.Message

	r := NewRouterWith("Synth", func(name string) (Sender, error) {
		opened[name]++
		if name == "Broken" {
			return nil, errors.New("unplugged")
		}
		return func(msg gomidi.Message) error {
			sent = append(sent, msg)
			return nil
		}, nil
	})

	require.NoError(t, r.Send("", gomidi.NoteOn(0, 60, 100)))
	require.NoError(t, r.Send("Synth", gomidi.NoteOff(0, 60)))
	assert.Equal(t, 1, opened["Synth"])
	assert.Len(t, sent, 2)

	assert.Error(t, r.Send("Broken", gomidi.NoteOn(0, 60, 100)))
	assert.Error(t, r.Send("Broken", gomidi.NoteOn(0, 60, 100)))
	assert.Equal(t, 2, opened["Broken"], "failed opens are retried")

	r.Forget("Synth")
	require.NoError(t, r.Send("Synth", gomidi.NoteOn(0, 61, 100)))
	assert.Equal(t, 2, opened["Synth"])
}

func TestRouterNoDefault(t *testing.T) {
	r := NewRouterWith("", func(string) (Sender, error) {
		t.Fatal("open should not be called")
		return nil, nil
	})
	assert.ErrorIs(t, r.Send("", gomidi.NoteOn(0, 60, 100)), ErrNoSuchPort)

	r.SetDefaultPort("Out")
	assert.Equal(t, "Out", r.DefaultPort())
}
