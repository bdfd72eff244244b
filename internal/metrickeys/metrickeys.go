package metrickeys

const (
	Prefix = "taskflow."

	// Engine
	EngineProgress     = Prefix + "engine.progress"
	EngineTasksManaged = Prefix + "engine.tasks.managed"
	EngineInFlight     = Prefix + "engine.applications.in_flight"
	EngineNotAdmitted  = Prefix + "engine.applications.not_admitted"
	EngineStoreErrors  = Prefix + "engine.store.errors"

	EngineForgottenCacheSize     = Prefix + "engine.forgotten.size"
	EngineForgottenCacheEviction = Prefix + "engine.forgotten.eviction"

	// Tasks
	TaskSubmitted  = Prefix + "task.submitted"
	TaskTerminated = Prefix + "task.terminated"
	TaskKilled     = Prefix + "task.killed"
	TaskRetried    = Prefix + "task.retried"

	// Backends
	JobStarted  = Prefix + "job.started"
	JobFinished = Prefix + "job.finished"
	JobDuration = Prefix + "job.duration"
)

// Tag names
const (
	// Backend being used
	Backend = "backend"

	Kind = "kind"

	// Outcome of a terminated task, "ok" or "failed"
	Outcome = "outcome"

	// Reason for evicting an entry from the forgotten task cache
	EvictionReason = "reason"
)
