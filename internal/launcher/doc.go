// Package launcher starts the sound machine workers.
//
// A launch resolves the work directory, makes sure tmux is available
// (installing it when configured to), terminates the sessions of a previous
// run and starts every worker of a profile detached in its own named session.
// Without tmux the workers become plain background processes whose output is
// appended to per-worker log files in the work directory. The launcher never
// waits on its workers; `start --watch` hands the result to the supervisor.
//
// The last run is recorded in <work_dir>/.soundmachine/state.yaml so that
// stop and status can find background processes again.
package launcher
