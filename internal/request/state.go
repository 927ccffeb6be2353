package request

// State is the lifecycle position of a Request.
type State int

const (
	StateInitial State = iota
	StateFetching
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateFetching:
		return "fetching"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Direction tells which leg of a transfer a Progress event describes.
type Direction int

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Download {
		return "download"
	}
	return "upload"
}

// Progress is a transport progress notification, Percent in 0..100.
type Progress struct {
	Direction Direction
	Percent   int
}

// ProgressFunc receives progress notifications.
type ProgressFunc func(Progress)

// ClampPercent bounds p to 0..100.
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Percent converts a done/total byte count into a whole percentage.
// A total of zero or less is unknown and always reports 0; the caller
// reports completion itself, as progress.Reader does at EOF.
func Percent(done, total int64) int {
	if total <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return ClampPercent(int(done * 100 / total))
}
