package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"vidshrink/internal/pipeline"
)

// progressPrinter draws one progress bar per job on a terminal.
type progressPrinter struct {
	w       io.Writer
	current string
	bar     *progressbar.ProgressBar
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) observe(evt pipeline.Event) {
	if p.bar != nil && p.current != evt.SourcePath {
		p.close()
	}
	if p.bar == nil {
		p.current = evt.SourcePath
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(describe(evt)),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	p.bar.Describe(describe(evt))
	_ = p.bar.Set(int(evt.Percent))
	if evt.State.Terminal() {
		p.close()
	}
}

func (p *progressPrinter) close() {
	fmt.Fprintln(p.w)
	p.bar = nil
	p.current = ""
}

func describe(evt pipeline.Event) string {
	return fmt.Sprintf("%-30.30s %-19s", evt.FileName, evt.State)
}
