package main

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/davecgh/go-spew/spew"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/twitter/depsched/common/endpoints"
	"github.com/twitter/depsched/common/errors"
	"github.com/twitter/depsched/common/stats"
	"github.com/twitter/depsched/sched/config"
	"github.com/twitter/depsched/sched/demo"
	"github.com/twitter/depsched/sched/scheduler"
)

const (
	SchedulerPath = "/admin/scheduler.json"
	FailedPath    = "/admin/failed.json"
)

type demoCmd struct {
	opts         demo.Options
	workers      int
	drainTimeout time.Duration
	dump         bool
	linger       time.Duration
}

func (c *demoCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "demo",
		Short: "Replays a synthetic commit history through the scheduler",
	}
	r.Flags().IntVar(&c.opts.Commits, "commits", 50, "number of commits to replay")
	r.Flags().Int64Var(&c.opts.Seed, "seed", time.Now().UnixNano(), "seed for the synthetic history")
	r.Flags().DurationVar(&c.opts.MetricDelay, "metric_delay", 20*time.Millisecond, "time spent per metric job")
	r.Flags().IntVar(&c.opts.FailEvery, "fail_every", 0, "fail every n-th metric job (0 = never)")
	r.Flags().IntVar(&c.workers, "workers", 0, "worker slots, overrides the config")
	r.Flags().DurationVar(&c.drainTimeout, "drain_timeout", 2*time.Minute, "how long to wait for the scheduler to drain")
	r.Flags().BoolVar(&c.dump, "dump", false, "dump failed and blocked jobs")
	r.Flags().DurationVar(&c.linger, "linger", 0, "keep the admin endpoint up this long after draining")
	return r
}

func (c *demoCmd) run(cl *cli, cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cl.configFlag)
	if err != nil {
		return errors.NewError(err, errors.ConfigLoadFailureExitCode)
	}
	schedConfig, err := cfg.Create()
	if err != nil {
		return errors.NewError(err, errors.ConfigLoadFailureExitCode)
	}

	stat := stats.DefaultStatsReceiver()
	s := scheduler.NewScheduler(schedConfig, stat.Scope("scheduler"))

	if cfg.Admin.Addr != "" {
		server := endpoints.NewTwitterServer(cfg.Admin.Addr, cfg.Admin.MaxConns, stat)
		server.AddJSON(SchedulerPath, func() interface{} { return s.Status() })
		server.AddJSON(FailedPath, func() interface{} { return scheduler.Report(s.FailedJobs()) })
		ln, err := server.Listen()
		if err != nil {
			return errors.NewError(err, errors.AdminServeFailureExitCode)
		}
		defer ln.Close()
		go func() {
			if err := server.Serve(ln); err != nil {
				log.WithFields(log.Fields{"err": err}).Info("Admin server stopped")
			}
		}()
	}

	root, results := demo.NewHistoryUpdater(c.opts)
	if err := s.Submit(root); err != nil {
		return errors.NewError(err, errors.DemoSubmitFailureExitCode)
	}
	s.Start(c.workers)
	start := time.Now()

	if err := drain(s, c.drainTimeout); err != nil {
		return errors.NewError(err, errors.DrainTimeoutExitCode)
	}
	frozen := s.Stop()
	s.Wait()
	st := s.Stats()
	log.WithFields(log.Fields{
		"elapsed":  time.Since(start),
		"finished": st.Finished,
		"failed":   st.Failed,
		"waiting":  st.Waiting,
		"frozen":   len(frozen),
	}).Info("Scheduler drained")

	for _, class := range st.ClassNames() {
		cs := st.Classes[class]
		avg, _ := s.AverageRunTime(class)
		fmt.Printf("%-16s finished=%-5d failed=%-5d waiting=%-5d avg=%v\n",
			class, cs.Finished, cs.Failed, cs.Waiting, avg)
	}
	if summary := results.Summary(); summary != nil {
		fmt.Printf("commits=%d netLines=%d topAuthor=%s\n", summary.Commits, summary.NetLines, summary.TopAuthor)
	}
	if c.dump {
		spew.Dump(scheduler.Report(s.FailedJobs()), scheduler.Report(s.Blocked()))
	}
	if c.linger > 0 && cfg.Admin.Addr != "" {
		log.Infof("Admin endpoint stays up for %v", c.linger)
		time.Sleep(c.linger)
	}

	if st.Failed > 0 {
		return errors.NewError(
			pkgerrors.Errorf("%d jobs failed, %d left blocked", st.Failed, len(s.Blocked())),
			errors.DemoJobFailureExitCode)
	}
	return nil
}

// drain polls s with exponential backoff until it is idle or timeout elapses.
func drain(s *scheduler.Scheduler, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = timeout
	try := 1
	return backoff.Retry(func() error {
		log.Debugf("Drain check #%d", try)
		try++
		if !s.Idle() {
			st := s.Stats()
			return pkgerrors.Errorf("scheduler busy: %d running, %d waiting", st.Running, st.Waiting)
		}
		return nil
	}, b)
}
