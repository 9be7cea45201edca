package main

import (
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// barProgress adapts a done/total callback to a terminal progress bar,
// created on the first call once the total is known.
type barProgress struct {
	mu   sync.Mutex
	desc string
	bar  *progressbar.ProgressBar
}

func newBarProgress(desc string) *barProgress {
	return &barProgress{desc: desc}
}

func (p *barProgress) Update(done, total int) {
	if os.Getenv("CI") != "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(p.desc),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(done)
}

func (p *barProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
