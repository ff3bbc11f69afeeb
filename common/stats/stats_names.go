package stats

/*
This file defines all the metrics being collected.   As new metrics are added please follow this pattern.
*/

const (
	/************************* Scheduler metrics **************************/
	/*
		number of jobs accepted by Submit, SubmitIndependent and SubmitBatch
	*/
	SchedJobsSubmittedCounter = "jobsSubmittedCounter"

	/*
		number of jobs tracked by the scheduler that are not running and not terminal,
		i.e. blocked on prerequisites or sitting in a ready queue
	*/
	SchedJobsWaitingGauge = "jobsWaitingGauge"

	/*
		number of jobs currently executing on a worker
	*/
	SchedJobsRunningGauge = "jobsRunningGauge"

	/*
		number of jobs that completed their unit of work without error
	*/
	SchedJobsFinishedCounter = "jobsFinishedCounter"

	/*
		number of jobs whose unit of work returned an error or panicked
	*/
	SchedJobsFailedCounter = "jobsFailedCounter"

	/*
		number of jobs detached from the scheduler by Cancel
	*/
	SchedJobsCancelledCounter = "jobsCancelledCounter"

	/*
		number of times a running job gave its slot back, either by Yield or because
		the scheduler was stopped underneath it
	*/
	SchedJobsYieldedCounter = "jobsYieldedCounter"

	/*
		number of jobs whose prerequisites are all satisfied but that are waiting for
		the worker pool to be started
	*/
	SchedReadyQueueLenGauge = "readyQueueLenGauge"

	/*
		number of entries in the failed-job ring buffer
	*/
	SchedFailedQueueLenGauge = "failedQueueLenGauge"

	/*
		time from a job's first submission until it completes, fails or is cancelled
	*/
	SchedJobLifetimeLatency_ms = "jobLifetimeLatency_ms"

	/*
		time a job spends executing on a worker, measured per dispatch
	*/
	SchedJobRunLatency_ms = "jobRunLatency_ms"

	/*
		time between a job becoming ready and a worker starting it
	*/
	SchedJobQueueLatency_ms = "jobQueueLatency_ms"

	/*
		the number of started jobs, scoped by job class
	*/
	SchedClassStartedCounter = "startedCounter"

	/*
		the number of failed jobs, scoped by job class
	*/
	SchedClassFailedCounter = "failedCounter"

	/************************* Worker pool metrics **************************/
	/*
		the number of concurrent execution slots the pool was last resumed with, 0 while paused
	*/
	PoolSlotsGauge = "slotsGauge"

	/*
		number of occupied worker slots, including tasks still waiting on the dispatch limiter
	*/
	PoolRunningGauge = "runningGauge"

	/*
		number of tasks submitted to the pool that have not started yet
	*/
	PoolPendingGauge = "pendingGauge"

	/*
		number of not-started tasks captured by the last Pause
	*/
	PoolFrozenGauge = "frozenGauge"

	/*
		number of tasks the pool has started
	*/
	PoolStartedCounter = "startedCounter"

	/*
		number of tasks removed by Cancel before they started
	*/
	PoolPreemptedCounter = "preemptedCounter"

	/*
		number of tasks whose Run panicked; the panic is converted to an error
	*/
	PoolPanicCounter = "panicCounter"

	/*
		number of tasks that were running when the pool was paused and had their context cancelled
	*/
	PoolInterruptedCounter = "interruptedCounter"

	/************************* Admin endpoint metrics **************************/
	/*
		The length of time the admin server has been running
	*/
	AdminUptime_ms = "uptime_ms"

	/*
		number of requests served by the admin endpoint
	*/
	AdminServeCounter = "serveCounter"
)
