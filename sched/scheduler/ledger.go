package scheduler

import (
	"sort"
)

type jobSet map[*Job]struct{}

// ledger records, for every registered job, the prerequisites that have not finished yet,
// and the reverse edges used to find dependents when a prerequisite finishes.
// A registered job is ready iff its unmet set is empty. Not thread-safe; owned by Scheduler.
type ledger struct {
	unmet      map[*Job]jobSet
	dependents map[*Job]jobSet
}

func newLedger() *ledger {
	return &ledger{
		unmet:      make(map[*Job]jobSet),
		dependents: make(map[*Job]jobSet),
	}
}

// register records deps as the unmet prerequisites of job and reports whether job is ready.
func (l *ledger) register(job *Job, deps []*Job) bool {
	if _, ok := l.unmet[job]; ok {
		panic("job registered twice in dependency ledger: " + job.String())
	}
	l.unmet[job] = make(jobSet)
	for _, d := range deps {
		l.add(job, d)
	}
	return len(l.unmet[job]) == 0
}

// add makes dep an unmet prerequisite of the registered job.
func (l *ledger) add(job, dep *Job) {
	l.unmet[job][dep] = struct{}{}
	if l.dependents[dep] == nil {
		l.dependents[dep] = make(jobSet)
	}
	l.dependents[dep][job] = struct{}{}
}

func (l *ledger) registered(job *Job) bool {
	_, ok := l.unmet[job]
	return ok
}

func (l *ledger) ready(job *Job) bool {
	deps, ok := l.unmet[job]
	return ok && len(deps) == 0
}

// unmetDeps returns the job's outstanding prerequisites.
func (l *ledger) unmetDeps(job *Job) []*Job {
	out := make([]*Job, 0, len(l.unmet[job]))
	for d := range l.unmet[job] {
		out = append(out, d)
	}
	return sortJobs(out)
}

// finished clears dep from every job waiting on it and returns the jobs that became
// ready as a result, in dispatch order.
func (l *ledger) finished(dep *Job) []*Job {
	var ready []*Job
	for job := range l.dependents[dep] {
		deps := l.unmet[job]
		delete(deps, dep)
		if len(deps) == 0 {
			ready = append(ready, job)
		}
	}
	delete(l.dependents, dep)
	l.remove(dep)
	return sortJobs(ready)
}

// remove forgets job's own entry. Jobs that list job as a prerequisite keep waiting on it.
func (l *ledger) remove(job *Job) {
	for d := range l.unmet[job] {
		if waiting := l.dependents[d]; waiting != nil {
			delete(waiting, job)
			if len(waiting) == 0 {
				delete(l.dependents, d)
			}
		}
	}
	delete(l.unmet, job)
}

// blockedOn returns the registered jobs still waiting on dep.
func (l *ledger) blockedOn(dep *Job) []*Job {
	out := make([]*Job, 0, len(l.dependents[dep]))
	for j := range l.dependents[dep] {
		out = append(out, j)
	}
	return sortJobs(out)
}

func sortJobs(jobs []*Job) []*Job {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].Priority() != jobs[k].Priority() {
			return jobs[i].Priority() < jobs[k].Priority()
		}
		return jobs[i].Seq() < jobs[k].Seq()
	})
	return jobs
}
