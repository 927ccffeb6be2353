package progress

import (
	"io"
	"sync"
)

// Reader counts bytes read through it and reports whole percentages of total.
// Reports are monotonic and deduplicated.
type Reader struct {
	r      io.Reader
	total  int64
	report func(percent int)

	mu   sync.Mutex
	read int64
	last int
}

func NewReader(r io.Reader, total int64, report func(percent int)) *Reader {
	return &Reader{r: r, total: total, report: report, last: -1}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)

	pr.mu.Lock()
	pr.read += int64(n)
	pct := -1
	if pr.total > 0 {
		pct = clamp(int(pr.read * 100 / pr.total))
	}
	if err == io.EOF {
		pct = 100
	}
	emit := pct > pr.last
	if emit {
		pr.last = pct
	}
	pr.mu.Unlock()

	if emit && pr.report != nil {
		pr.report(pct)
	}
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (pr *Reader) BytesRead() int64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.read
}

// Close closes the wrapped reader when it is an io.Closer.
func (pr *Reader) Close() error {
	if c, ok := pr.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
