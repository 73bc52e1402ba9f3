// Package hum2song turns short humming recordings into instrumental
// tracks.

// The repo is organized into a server binary, a CLI, and the packages
// they share:

// - cmd/server: the HTTP API server
// - cmd/hum2song: the command line client
// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/tasks: in-memory task store and state machine
// - internal/queue: background worker pool for conversions
// - internal/pipeline: preprocess -> transcribe -> synthesize stages
// - internal/audio: upload normalization (mono, resample, peak)
// - internal/transcribe: humming-to-MIDI transcriber adapters
// - internal/synth: MIDI-to-audio rendering (fluidsynth + stub)
// - internal/score: the editable score model, normalizer and optimizer
// - internal/midifile: score <-> Standard MIDI File codec
// - internal/storage: upload/output/artifact directory layout
// - internal/client: typed API client used by the CLI
// - internal/cli: the hum2song command tree

// See the individual package documentation for detailed reference.
package hum2song
