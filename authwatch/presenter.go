// CLAUDE:SUMMARY Console presentation of initial scans and newly detected items.
package authwatch

import (
	"fmt"
	"io"
	"sync"

	"github.com/hazyhaar/authwatch/internal/detect"
)

// Presenter prints each observation for the operator: the initial scan
// once, then new items, or a one-line "no new items". Nothing is printed
// for empty observations before the initial scan.
type Presenter struct {
	mu     sync.Mutex
	w      io.Writer
	primed bool
}

// NewPresenter writes to w.
func NewPresenter(w io.Writer) *Presenter {
	return &Presenter{w: w}
}

// Present prints res.
func (p *Presenter) Present(res detect.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case len(res.New) == 0:
		if p.primed {
			fmt.Fprintln(p.w, "no new items")
		}
		return
	case res.Initial:
		p.primed = true
		fmt.Fprintf(p.w, "--- initial scan: %d items ---\n", len(res.New))
	default:
		fmt.Fprintf(p.w, "--- NEW ITEMS (%d) ---\n", len(res.New))
	}
	for _, it := range res.New {
		fmt.Fprintln(p.w, it.String())
	}
}
