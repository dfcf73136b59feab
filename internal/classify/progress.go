package classify

import "sync/atomic"

// Progress counts classified fragments across concurrent batches.
type Progress struct {
	done    atomic.Int64
	total   int64
	observe func(done, total int)
}

// NewProgress creates a counter for total fragments. observe, when non-nil,
// is called after every update and must be safe for concurrent use.
func NewProgress(total int, observe func(done, total int)) *Progress {
	return &Progress{total: int64(total), observe: observe}
}

// Add records n more classified fragments.
func (p *Progress) Add(n int) {
	if p == nil {
		return
	}
	done := p.done.Add(int64(n))
	if p.observe != nil {
		p.observe(int(done), int(p.total))
	}
}

// Done returns the number of fragments recorded so far.
func (p *Progress) Done() int {
	if p == nil {
		return 0
	}
	return int(p.done.Load())
}

// Total returns the expected number of fragments.
func (p *Progress) Total() int {
	if p == nil {
		return 0
	}
	return int(p.total)
}
