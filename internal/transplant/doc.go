// Package transplant moves the source's audio, subtitles and metadata onto a
// freshly encoded video stream and swaps finished outputs into place.
//
// Remuxing is expressed as an ordered list of strategies: the full strategy
// keeps audio, subtitles, chapters, global metadata and the creation time;
// the reduced strategy, tried only when the full one fails, keeps audio and
// global metadata. Neither re-encodes. The intermediate file is removed on
// every exit path.
//
// ReplaceSource swaps an output over its source through a .bak file and
// restores the backup when a step fails, so the source and its backup are
// never both missing.
package transplant
