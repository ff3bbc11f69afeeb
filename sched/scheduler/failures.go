package scheduler

// DefaultFailedQueueCapacity bounds the failure ledger when no capacity is configured.
const DefaultFailedQueueCapacity = 1000

// failureRing keeps the most recently failed jobs. Adding to a full ring evicts the oldest.
// Not thread-safe; owned by Scheduler.
type failureRing struct {
	jobs  []*Job
	start int
	size  int
}

func newFailureRing(capacity int) *failureRing {
	if capacity <= 0 {
		capacity = DefaultFailedQueueCapacity
	}
	return &failureRing{jobs: make([]*Job, capacity)}
}

func (r *failureRing) add(job *Job) {
	if r.size < len(r.jobs) {
		r.jobs[(r.start+r.size)%len(r.jobs)] = job
		r.size++
		return
	}
	r.jobs[r.start] = job
	r.start = (r.start + 1) % len(r.jobs)
}

// list returns the ring's contents, oldest first.
func (r *failureRing) list() []*Job {
	out := make([]*Job, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.jobs[(r.start+i)%len(r.jobs)]
	}
	return out
}

func (r *failureRing) len() int      { return r.size }
func (r *failureRing) capacity() int { return len(r.jobs) }
