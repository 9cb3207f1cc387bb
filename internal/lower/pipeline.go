package lower

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/google/autopiper/internal/arbiter"
	"github.com/google/autopiper/internal/backedge"
	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/ifconv"
	"github.com/google/autopiper/internal/ir"
	"github.com/google/autopiper/internal/killif"
	"github.com/google/autopiper/internal/sideeffect"
	"github.com/google/autopiper/internal/spine"
	"github.com/google/autopiper/internal/timing"
)

// runSys runs the portion of the pipeline that is safe to fan out across
// independent PipeSyses (spec.md §5 rules out concurrency only within one
// PipeSys's lowering) against a single sys, reporting into its own
// collector so the caller can attribute diagnostics without a shared lock
// on the report path.
func runSys(p *ir.Program, sys *ir.PipeSys, model timing.Model) *diag.Collector {
	d := diag.NewCollector()

	steps := []func() bool{
		func() bool { return backedge.RunSys(p, d, sys) },
		func() bool { return ifconv.RunSys(p, d, sys) },
		func() bool { return sideeffect.RunSys(p, d, sys) },
		func() bool { return timing.RunSysWithModel(p, d, sys, model) },
		func() bool { return killif.RunSys(p, d, sys) },
		func() bool { return arbiter.RunSys(p, d, sys) },
		func() bool { return spine.RunSys(p, d, sys) },
	}
	for _, step := range steps {
		if !step() || d.HasErrors() {
			return d
		}
	}
	return d
}

// runSysPool fans runSys out across p.PipeSyses with a bounded worker
// pool, one goroutine per PipeSys capped at GOMAXPROCS, joining all of
// them before returning. Every PipeSys's diagnostics are merged into one
// collector in PipeSys order, so output is deterministic regardless of
// which goroutine finishes first.
func runSysPool(p *ir.Program, into *diag.Collector, model timing.Model, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(p.PipeSyses) {
		workers = len(p.PipeSyses)
	}
	if workers < 1 {
		return nil
	}

	results := make([]*diag.Collector, len(p.PipeSyses))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = runSys(p, p.PipeSyses[i], model)
			}
		}()
	}
	for i := range p.PipeSyses {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	failed := false
	for _, d := range results {
		for _, item := range d.Items() {
			into.Report(item.Severity, item.Kind, item.Pos, "%s", item.Message)
		}
		if d.HasErrors() {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("lowering failed in one or more pipe systems")
	}
	return nil
}
