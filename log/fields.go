package log

const (
	NamespaceKey = "taskflow"

	TaskIDKey    = NamespaceKey + ".task.id"
	TaskNameKey  = NamespaceKey + ".task.name"
	TaskKindKey  = NamespaceKey + ".task.kind"
	StateKey     = NamespaceKey + ".task.state"
	PrevStateKey = NamespaceKey + ".task.prev_state"
	ExitCodeKey  = NamespaceKey + ".task.exit_code"
	ReasonKey    = NamespaceKey + ".task.reason"

	ParentIDKey = NamespaceKey + ".collection.id"
	IndexKey    = NamespaceKey + ".collection.index"
	CursorKey   = NamespaceKey + ".collection.cursor"

	BackendKey = NamespaceKey + ".backend"
	HandleKey  = NamespaceKey + ".job.handle"

	AttemptKey  = NamespaceKey + ".attempt"
	DurationKey = NamespaceKey + ".duration_ms"
)
