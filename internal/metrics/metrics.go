// Package metrics records launcher and worker metrics and serves them over HTTP.
package metrics

import (
	"time"
)

// Recorder defines the interface for collecting soundmachine metrics
type Recorder interface {
	// WorkerStarted records a worker spawned in the given mode (tmux or background)
	WorkerStarted(worker, mode string)

	// WorkerSpawnFailed records a failed spawn attempt
	WorkerSpawnFailed(worker string)

	// WorkerStopped records a worker terminated by the launcher
	WorkerStopped(worker string)

	// WorkerUp records whether a supervised worker is currently alive
	WorkerUp(worker string, up bool)

	// WorkerRestart records a supervisor restart and the backoff that preceded it
	WorkerRestart(worker string, backoff time.Duration)

	// SyncCompleted records one sound sync run
	SyncCompleted(duration time.Duration, added, updated, deleted, failed int, err error)

	// DownloadCompleted records one file download from the remote store
	DownloadCompleted(file string, bytes int64, err error)

	// TagRead records a tag read by a worker (rfid, visualizer, player)
	TagRead(worker string)

	// PlaybackStarted records a playback attempt
	PlaybackStarted(err error)
}

// nopRecorder is a no-op implementation of Recorder
type nopRecorder struct{}

func (nopRecorder) WorkerStarted(worker, mode string)                  {}
func (nopRecorder) WorkerSpawnFailed(worker string)                    {}
func (nopRecorder) WorkerStopped(worker string)                        {}
func (nopRecorder) WorkerUp(worker string, up bool)                    {}
func (nopRecorder) WorkerRestart(worker string, backoff time.Duration) {}
func (nopRecorder) SyncCompleted(duration time.Duration, added, updated, deleted, failed int, err error) {
}
func (nopRecorder) DownloadCompleted(file string, bytes int64, err error) {}
func (nopRecorder) TagRead(worker string)                                {}
func (nopRecorder) PlaybackStarted(err error)                            {}

// Nop returns a Recorder that discards everything.
func Nop() Recorder {
	return nopRecorder{}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
