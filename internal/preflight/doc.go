// Package preflight provides readiness checks for the directories and
// external binaries vidshrink depends on.
//
// These checks run in two contexts:
//   - "vidshrink run" calls RunAll before scanning; any failed check aborts
//     the run before an encoder is started.
//   - "vidshrink check" prints every result, including ffmpeg feature
//     detection from CheckSystemDeps.
package preflight
