// Package blockrange normalizes caller-supplied block selections into the
// half-open range strings the extraction tool expects.
package blockrange

import (
	"fmt"
	"path/filepath"
)

// Mode selects the window sizing for requests that name only a start block
// or no blocks at all.
type Mode int

const (
	// ModeQuery sizes windows for primary data fetches: 10 blocks, and a
	// bare latest flag means the single head block.
	ModeQuery Mode = iota
	// ModeSample sizes windows for schema samples: 5 blocks, and a bare
	// latest flag means the head block and the 4 before it.
	ModeSample
)

const (
	// DefaultWindow is the block count fetched when only a start block is given.
	DefaultWindow = 10
	// SampleWindow is the block count fetched for schema samples.
	SampleWindow = 5

	// defaultStart anchors the fallback range used when the caller supplies
	// no selection at all.
	defaultStart = 1000
)

// Request describes one caller-supplied block selection. At most one of the
// selection forms is honored, in Resolve's documented precedence order.
type Request struct {
	// Blocks is an explicit range string in the tool's native half-open
	// format, e.g. "1000:1010". Passed through unchanged.
	Blocks string
	// StartBlock and EndBlock are inclusive on both ends.
	StartBlock *int64
	EndBlock   *int64
	// UseLatest selects a range ending at the current chain head.
	UseLatest bool
	// BlocksFromLatest selects the head block and the N blocks before it.
	BlocksFromLatest *int64
}

// HeadFunc reports the current chain head block number.
type HeadFunc func() (int64, error)

// Range is a normalized block selection.
type Range struct {
	// Text is the half-open range in the extraction tool's format.
	Text string
	// IsLatest marks head-relative ranges, which land in the ephemeral
	// output bucket instead of the persistent data root.
	IsLatest bool
}

// window returns the fixed window width for the mode.
func (m Mode) window() int64 {
	if m == ModeSample {
		return SampleWindow
	}
	return DefaultWindow
}

// Resolve normalizes a request into a Range.
//
// Precedence: explicit Blocks string > UseLatest/BlocksFromLatest >
// StartBlock/EndBlock > a fixed default range. Inclusive integer pairs are
// converted to half-open form by incrementing the end. Head-relative
// requests call head exactly once; a head failure fails the whole
// resolution and is returned unchanged, never retried or defaulted.
func Resolve(req Request, mode Mode, head HeadFunc) (Range, error) {
	if req.Blocks != "" {
		return Range{Text: req.Blocks}, nil
	}

	if req.UseLatest || req.BlocksFromLatest != nil {
		headBlock, err := head()
		if err != nil {
			return Range{}, err
		}

		var offset int64
		switch {
		case req.BlocksFromLatest != nil:
			offset = *req.BlocksFromLatest
		case mode == ModeSample:
			// A bare latest flag on the sample path still fetches a
			// window's worth of blocks ending at the head.
			offset = mode.window() - 1
		}

		return Range{
			Text:     fmt.Sprintf("%d:%d", headBlock-offset, headBlock+1),
			IsLatest: true,
		}, nil
	}

	if req.StartBlock != nil {
		start := *req.StartBlock
		if req.EndBlock != nil {
			return Range{Text: fmt.Sprintf("%d:%d", start, *req.EndBlock+1)}, nil
		}
		return Range{Text: fmt.Sprintf("%d:%d", start, start+mode.window())}, nil
	}

	return Range{Text: fmt.Sprintf("%d:%d", defaultStart, defaultStart+mode.window())}, nil
}

// OutputDir reports where extraction output for this range belongs: the
// ephemeral latest bucket for head-relative ranges, the persistent data
// root otherwise.
func (r Range) OutputDir(dataRoot string) string {
	if r.IsLatest {
		return filepath.Join(dataRoot, "latest")
	}
	return dataRoot
}
