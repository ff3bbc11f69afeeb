package scheduler

// JobReport is the serializable summary of a job served by the admin endpoint.
type JobReport struct {
	ID       string
	Class    string
	Priority int
	State    string
	Err      string `json:",omitempty"`
}

// Report summarizes jobs in order.
func Report(jobs []*Job) []JobReport {
	out := make([]JobReport, 0, len(jobs))
	for _, j := range jobs {
		r := JobReport{ID: j.ID(), Class: j.Class(), Priority: j.Priority(), State: j.State().String()}
		if err := j.Err(); err != nil {
			r.Err = err.Error()
		}
		out = append(out, r)
	}
	return out
}

// StatusReport is the scheduler snapshot served by the admin endpoint.
type StatusReport struct {
	Executing bool
	Workers   int
	Stats     Stats
	Blocked   []JobReport
}

// Status returns the scheduler's current StatusReport.
func (s *Scheduler) Status() StatusReport {
	return StatusReport{
		Executing: s.IsExecuting(),
		Workers:   s.WorkerCount(),
		Stats:     s.Stats(),
		Blocked:   Report(s.Blocked()),
	}
}
