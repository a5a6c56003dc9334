package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		want       int
		wantStderr string
	}{
		{"success", nil, 0, ""},
		{"failure", errors.New("2 of 5 files failed"), 1, "2 of 5 files failed\n"},
		{"interrupted", fmt.Errorf("run: %w", context.Canceled), exitInterrupted, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if got := exitCode(tt.err, &stderr); got != tt.want {
				t.Fatalf("exitCode = %d, want %d", got, tt.want)
			}
			if stderr.String() != tt.wantStderr {
				t.Fatalf("stderr = %q, want %q", stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestWriteJSONKeepsFileNamesReadable(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	if err := writeJSON(cmd, map[string]string{"file": "Tom & Jerry <1080p>.mkv"}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	want := "{\n  \"file\": \"Tom & Jerry <1080p>.mkv\"\n}\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}
