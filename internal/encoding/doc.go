// Package encoding supervises the external encoder for a single job.
//
// The Supervisor launches ffmpeg with machine-readable progress on stdout,
// parses the key=value stream into percentages, kills the process when no
// progress arrives within the watchdog interval, and honours cancellation by
// hard-killing the process and removing the partial output. It never writes
// to the source path.
package encoding
