package vfs

// Progress describes one update in a write or read's progress stream.
// One update is sent per 256 KiB processed, plus a terminal update with
// Done set (Err nil on success, non-nil on failure). Sends never block: an
// update that finds the channel full is dropped, the terminal one included.
type Progress struct {
	Path        string
	BytesDone   int64
	BytesTotal  int64
	BytesPerSec float64
	Done        bool
	Err         error
}

// progressUpdateThreshold is the spec.md §6 "at least one update per
// 256 KiB processed" cadence.
const progressUpdateThreshold = 256 * 1024

// progressEmitter batches BytesDone updates and only actually sends on
// ch once threshold bytes have accumulated (or on Finish), so a caller
// reading one chunk_size-sized block at a time (commonly far smaller
// than 256 KiB) doesn't flood the channel.
type progressEmitter struct {
	ch      chan<- Progress
	path    string
	total   int64
	done    int64
	pending int64
	started int64 // unix nanos at first Advance, for bytes/sec
}

func newProgressEmitter(ch chan<- Progress, path string, total int64) *progressEmitter {
	return &progressEmitter{ch: ch, path: path, total: total}
}

func (p *progressEmitter) Advance(n int64, elapsedNanos int64) {
	if p.ch == nil {
		return
	}
	p.done += n
	p.pending += n
	if p.pending < progressUpdateThreshold {
		return
	}
	p.pending = 0
	var bps float64
	if elapsedNanos > 0 {
		bps = float64(p.done) / (float64(elapsedNanos) / 1e9)
	}
	p.send(Progress{Path: p.path, BytesDone: p.done, BytesTotal: p.total, BytesPerSec: bps})
}

func (p *progressEmitter) Finish(err error) {
	if p.ch == nil {
		return
	}
	p.send(Progress{Path: p.path, BytesDone: p.done, BytesTotal: p.total, Done: true, Err: err})
}

func (p *progressEmitter) send(update Progress) {
	select {
	case p.ch <- update:
	default:
		// A slow or absent reader never blocks the write/read pipeline;
		// progress is best-effort telemetry, not a control channel.
	}
}
