package scheduler

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxPerfClasses bounds how many job classes keep a running average.
const DefaultMaxPerfClasses = 500

type averageDuration struct {
	count    int64
	duration time.Duration
}

func (ad *averageDuration) update(d time.Duration) {
	ad.count++
	ad.duration = ad.duration + time.Duration(int64(d-ad.duration)/ad.count)
}

// perfLog logs each job's queue wait and run time and keeps a running average run
// time per job class in a bounded LRU. A nil *perfLog is disabled.
type perfLog struct {
	averages *lru.Cache
}

func newPerfLog(enabled bool, maxClasses int) *perfLog {
	if !enabled {
		return nil
	}
	if maxClasses <= 0 {
		maxClasses = DefaultMaxPerfClasses
	}
	cache, err := lru.New(maxClasses)
	if err != nil {
		log.Errorf("Failed to create perf log cache: %v", err)
		return nil
	}
	return &perfLog{averages: cache}
}

func (p *perfLog) record(job *Job, queued, ran time.Duration, outcome string) {
	if p == nil {
		return
	}
	var ad *averageDuration
	if iface, ok := p.averages.Get(job.Class()); ok {
		ad = iface.(*averageDuration)
		ad.update(ran)
	} else {
		ad = &averageDuration{count: 1, duration: ran}
		p.averages.Add(job.Class(), ad)
	}
	log.WithFields(log.Fields{
		"jobID":      job.ID(),
		"class":      job.Class(),
		"outcome":    outcome,
		"queued":     queued,
		"ran":        ran,
		"classAvg":   ad.duration,
		"classCount": ad.count,
	}).Info("Job perf")
}

// average returns the running average run time of class, if one is recorded.
func (p *perfLog) average(class string) (time.Duration, bool) {
	if p == nil {
		return 0, false
	}
	iface, ok := p.averages.Get(class)
	if !ok {
		return 0, false
	}
	return iface.(*averageDuration).duration, true
}
