package launcher

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadState_Missing(t *testing.T) {
	st, err := LoadState(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, st.RunID)
	assert.Empty(t, st.Workers)
}

func TestState_SaveLoad(t *testing.T) {
	dir := t.TempDir()

	st := NewState("full", "/srv/sm", ModeBackground)
	st.Put(WorkerState{Name: "audio", Session: "audio-player", Mode: ModeBackground, PID: 4242,
		LogFile: "/srv/sm/audio-player.log", Argv: []string{"sm", "player"}})
	st.Put(WorkerState{Name: "rfid", Session: "rfid-reader", Mode: ModeBackground, PID: 4243})
	require.NoError(t, st.Save(dir))

	_, err := os.Stat(StatePath(dir) + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	got, err := LoadState(dir)
	require.NoError(t, err)
	assert.Equal(t, st.RunID, got.RunID)
	assert.Equal(t, ModeBackground, got.Mode)
	require.Len(t, got.Workers, 2)
	assert.Equal(t, 4242, got.Worker("audio").PID)
	assert.Equal(t, []string{"sm", "player"}, got.Worker("audio").Argv)
}

func TestState_PutReplacesAndDrop(t *testing.T) {
	st := &State{}
	st.Put(WorkerState{Name: "audio", PID: 1})
	st.Put(WorkerState{Name: "audio", PID: 2})
	st.Put(WorkerState{Name: "rfid", PID: 3})

	require.Len(t, st.Workers, 2)
	assert.Equal(t, 2, st.Worker("audio").PID)

	st.Drop("audio")
	assert.Nil(t, st.Worker("audio"))
	assert.Len(t, st.Workers, 1)
}

func TestLoadState_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(StatePath(dir), []byte("workers: [unterminated"), 0644))

	_, err := LoadState(dir)
	assert.Error(t, err)
}

func TestNewState_UniqueRunIDs(t *testing.T) {
	a := NewState("full", "/srv", ModeTmux)
	b := NewState("full", "/srv", ModeTmux)
	assert.NotEqual(t, a.RunID, b.RunID)
}
