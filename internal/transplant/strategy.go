package transplant

import (
	"path/filepath"
	"strings"
)

// Inputs are the paths and source facts a strategy builds its command from.
type Inputs struct {
	Encoded      string
	Source       string
	Output       string
	CreationTime string
}

// Strategy is one remux attempt.
type Strategy struct {
	Name string
	Args func(Inputs) []string
}

// DefaultStrategies returns the full strategy followed by the reduced one.
func DefaultStrategies() []Strategy {
	return []Strategy{FullStrategy(), ReducedStrategy()}
}

// FullStrategy keeps the encoded video and copies audio, subtitles, chapters,
// global metadata and the creation time from the source.
func FullStrategy() Strategy {
	return Strategy{
		Name: "full",
		Args: func(in Inputs) []string {
			args := remuxPrefix(in)
			args = append(args,
				"-map", "0:v",
				"-map", "1:a?",
				"-map", "1:s?",
				"-map_metadata", "1",
				"-map_chapters", "1",
				"-c", "copy",
			)
			if in.CreationTime != "" {
				args = append(args, "-metadata", "creation_time="+in.CreationTime)
			}
			return remuxSuffix(args, in, true)
		},
	}
}

// ReducedStrategy keeps the encoded video, the source audio and global
// metadata.
func ReducedStrategy() Strategy {
	return Strategy{
		Name: "reduced",
		Args: func(in Inputs) []string {
			args := remuxPrefix(in)
			args = append(args,
				"-map", "0:v",
				"-map", "1:a?",
				"-map_metadata", "1",
				"-c", "copy",
			)
			return remuxSuffix(args, in, false)
		},
	}
}

func remuxPrefix(in Inputs) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", in.Encoded,
		"-i", in.Source,
	}
}

func remuxSuffix(args []string, in Inputs, keepTags bool) []string {
	switch strings.ToLower(filepath.Ext(in.Output)) {
	case ".mp4", ".mov", ".m4v":
		flags := "+faststart"
		if keepTags {
			flags += "+use_metadata_tags"
		}
		args = append(args, "-movflags", flags)
	}
	return append(args, in.Output)
}
