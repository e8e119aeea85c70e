package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeCheckpointer struct {
	name  string
	err   error
	modes []string
}

func (f *fakeCheckpointer) Name() string { return f.name }

func (f *fakeCheckpointer) WALCheckpoint(mode string) error {
	f.modes = append(f.modes, mode)
	return f.err
}

func TestCheckWALCheckpointsJob_Name(t *testing.T) {
	job := NewCheckWALCheckpointsJob(zerolog.Nop())
	assert.Equal(t, "check_wal_checkpoints", job.Name())
}

func TestCheckWALCheckpointsJob_Run_NoDatabases(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	job := NewCheckWALCheckpointsJob(log, nil)

	err := job.Run()
	assert.NoError(t, err) // Should handle nil databases gracefully
}

func TestCheckWALCheckpointsJob_Run_TruncatesEveryDatabase(t *testing.T) {
	ok := &fakeCheckpointer{name: "backtests"}
	failing := &fakeCheckpointer{name: "broken", err: errors.New("database is locked")}
	job := NewCheckWALCheckpointsJob(zerolog.New(nil).Level(zerolog.Disabled), ok, failing)

	assert.NoError(t, job.Run())
	assert.Equal(t, []string{"TRUNCATE"}, ok.modes)
	assert.Equal(t, []string{"TRUNCATE"}, failing.modes)
}
