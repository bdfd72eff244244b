package workflow

import "github.com/cschleiden/go-taskflow/backend"

// Controller is what tasks need from the engine driving them.
type Controller interface {
	// Backend executes the jobs of applications.
	Backend() backend.Backend

	// Admit decides whether the new task t may be submitted now. Collections ask before
	// submitting a child; a task that is not admitted stays NEW and is asked for again later.
	// Admit may be called concurrently.
	Admit(t Task) bool
}

type controller struct {
	b backend.Backend
}

// NewController returns a controller admitting every task.
func NewController(b backend.Backend) Controller {
	return &controller{b: b}
}

func (c *controller) Backend() backend.Backend {
	return c.b
}

func (c *controller) Admit(Task) bool {
	return true
}
