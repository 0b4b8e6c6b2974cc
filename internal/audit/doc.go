// Package audit keeps the append-only record of completed rotations.
//
// The canonical store is a CSV file with a fixed header. Other stores, such
// as the SQLite history, plug in through Recorder and receive the same
// records through MultiRecorder.
package audit
