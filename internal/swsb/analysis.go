package swsb

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/xyproto/swsb/internal/ir"
)

// Options tune an Analyzer
type Options struct {
	// Logf receives trace lines for token evictions, injected syncs and
	// macro splits. Nil discards them.
	Logf func(format string, args ...any)

	// Verify re-checks the bucket index after every instruction
	Verify bool
}

// Stats summarizes what the analysis did to one or more kernels
type Stats struct {
	Instructions  int // instructions analyzed, injected syncs excluded
	Distances     int // annotations carrying a distance
	TokenSets     int
	TokenWaits    int
	Syncs         int // injected sync instructions
	Evictions     int
	Macros        int
	ForcedFlushes int
}

// Add accumulates o into s
func (s *Stats) Add(o Stats) {
	s.Instructions += o.Instructions
	s.Distances += o.Distances
	s.TokenSets += o.TokenSets
	s.TokenWaits += o.TokenWaits
	s.Syncs += o.Syncs
	s.Evictions += o.Evictions
	s.Macros += o.Macros
	s.ForcedFlushes += o.ForcedFlushes
}

func (s Stats) String() string {
	return fmt.Sprintf("%d instructions, %d distances, %d token sets, %d token waits, %d syncs, %d evictions, %d macros, %d forced flushes",
		s.Instructions, s.Distances, s.TokenSets, s.TokenWaits, s.Syncs, s.Evictions, s.Macros, s.ForcedFlushes)
}

// Analyzer annotates kernels for one platform. It holds no per-kernel
// state, so one Analyzer can serve many goroutines.
type Analyzer struct {
	caps Capabilities
	opts Options
}

// NewAnalyzer returns an analyzer for a platform
func NewAnalyzer(caps Capabilities, opts Options) *Analyzer {
	return &Analyzer{caps: caps, opts: opts}
}

// Run annotates one kernel in place: every instruction gets its SWSB and
// the syncs it needs are inserted ahead of it
func (a *Analyzer) Run(k *ir.Kernel) (Stats, error) {
	bs := newBlockState(a.caps, a.opts)
	if err := bs.runKernel(k); err != nil {
		return bs.stats, err
	}
	return bs.stats, nil
}

// RunAll annotates independent kernels on up to jobs goroutines.
// The returned stats are indexed like kernels. The first error cancels the
// kernels that have not started yet.
func (a *Analyzer) RunAll(ctx context.Context, kernels []*ir.Kernel, jobs int) ([]Stats, error) {
	stats := make([]Stats, len(kernels))
	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, k := range kernels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			st, err := a.Run(k)
			stats[i] = st
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// Total sums per-kernel stats
func Total(stats []Stats) Stats {
	var t Stats
	for _, s := range stats {
		t.Add(s)
	}
	return t
}

// RunDependencyAnalysis annotates one kernel with default options
func RunDependencyAnalysis(k *ir.Kernel, caps Capabilities) error {
	_, err := NewAnalyzer(caps, Options{}).Run(k)
	return err
}
