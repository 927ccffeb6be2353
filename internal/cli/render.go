package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/dmitrijs2005/uploadq/internal/upload"
)

// renderer redraws a one-line progress summary on terminals and stays
// silent otherwise.
type renderer struct {
	out io.Writer
	q   *upload.Queue
	tty bool

	mu   sync.Mutex
	last string
}

func newRenderer(out io.Writer, q *upload.Queue) *renderer {
	return &renderer{out: out, q: q, tty: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (r *renderer) onChange(upload.Change) {
	if !r.tty {
		return
	}
	line := summary(r.q.Entries())

	r.mu.Lock()
	defer r.mu.Unlock()
	if line == r.last {
		return
	}
	r.last = line
	fmt.Fprintf(r.out, "\r\033[K%s", line)
}

func (r *renderer) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tty && r.last != "" {
		fmt.Fprintln(r.out)
	}
}

func summary(entries []*upload.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.ClientID()
		if f := e.File(); f != nil {
			name = f.Name
		}
		parts = append(parts, fmt.Sprintf("%s %d%% %s", name, e.Progress(), e.State()))
	}
	return strings.Join(parts, " | ")
}
