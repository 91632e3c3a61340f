package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/fluxcd/circles/pkg/job"
	fluxmetrics "github.com/fluxcd/circles/pkg/metrics"
)

const (
	DefaultSweepInterval = 30 * time.Second
	DefaultWorkers       = 4
)

type LoopVars struct {
	SweepInterval time.Duration
	// Workers is how many jobs may run at once. Deploy jobs wait for
	// rollouts, so this bounds how many deployments make progress
	// together.
	Workers int

	initOnce  sync.Once
	sweepSoon chan struct{}
}

func (loop *LoopVars) ensureInit() {
	loop.initOnce.Do(func() {
		loop.sweepSoon = make(chan struct{}, 1)
		if loop.SweepInterval <= 0 {
			loop.SweepInterval = DefaultSweepInterval
		}
		if loop.Workers <= 0 {
			loop.Workers = DefaultWorkers
		}
	})
}

// Loop runs queued jobs, and sweeps for timed out executions at
// least every SweepInterval, until stop is closed. Jobs still running
// then have their context cancelled; their executions are left for a
// later sweep.
func (d *Daemon) Loop(stop chan struct{}, wg *sync.WaitGroup, logger log.Logger) {
	defer wg.Done()
	d.ensureInit()

	ctx, cancel := context.WithCancel(context.Background())
	workers := pool.New().WithMaxGoroutines(d.Workers)
	for i := 0; i < d.Workers; i++ {
		workers.Go(func() {
			d.work(ctx, stop, logger)
		})
	}

	sweepTimer := time.NewTimer(d.SweepInterval)
	// Anything left over from before a restart is swept straight away.
	d.AskForSweep()

	for {
		select {
		case <-stop:
			logger.Log("stopping", "true")
			if waiting := d.Jobs.Waiting(); len(waiting) > 0 {
				logger.Log("info", "jobs not started; their executions are left for the sweep", "jobs", fmt.Sprint(waiting))
			}
			sweepTimer.Stop()
			cancel()
			workers.Wait()
			return
		case <-d.sweepSoon:
			if !sweepTimer.Stop() {
				select {
				case <-sweepTimer.C:
				default:
				}
			}
			d.runJob(ctx, &job.Job{ID: "sweep", Kind: job.KindSweep, Do: d.sweep}, logger)
			sweepTimer.Reset(d.SweepInterval)
		case <-sweepTimer.C:
			d.AskForSweep()
		}
	}
}

func (d *Daemon) work(ctx context.Context, stop chan struct{}, logger log.Logger) {
	for {
		select {
		case <-stop:
			return
		case j := <-d.Jobs.Ready():
			queueLength.Set(float64(d.Jobs.Len()))
			d.runJob(ctx, j, logger)
		}
	}
}

func (d *Daemon) runJob(ctx context.Context, j *job.Job, logger log.Logger) {
	jobLogger := log.With(logger, "jobID", j.ID, "kind", j.Kind)
	jobLogger.Log("state", "in-progress")
	start := time.Now()
	err := j.Do(ctx, jobLogger)
	jobDuration.With(
		fluxmetrics.LabelKind, string(j.Kind),
		fluxmetrics.LabelSuccess, fmt.Sprint(err == nil),
	).Observe(time.Since(start).Seconds())
	if err != nil {
		jobLogger.Log("state", "done", "success", "false", "err", err)
	} else {
		jobLogger.Log("state", "done", "success", "true")
	}
}

func (d *Daemon) sweep(ctx context.Context, logger log.Logger) error {
	ids, err := d.Orchestrator.Sweep(ctx)
	if len(ids) > 0 {
		logger.Log("timed-out", len(ids))
	}
	return err
}

// Ask for a sweep, or if there's one waiting, let that happen.
func (d *LoopVars) AskForSweep() {
	d.ensureInit()
	select {
	case d.sweepSoon <- struct{}{}:
	default:
	}
}
