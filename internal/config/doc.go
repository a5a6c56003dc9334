// Package config loads, normalizes, and validates vidshrink configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VIDSHRINK_FFMPEG. The Config type centralizes every knob the CLI and the
// transcode pipeline need; Settings is the immutable per-run snapshot the
// pipeline consumes so a reload never changes values mid-job.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
