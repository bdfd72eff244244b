package backend

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// JobSpec describes a unit of work to be executed by a backend.
type JobSpec struct {
	// Name of the job, informational only
	Name string `json:"name,omitempty"`

	// Arguments is the command line of the job. The first argument selects the executable (or,
	// for the in-process backend, the registered job function).
	Arguments []string `json:"arguments"`

	// Inputs are files the job reads.
	Inputs []string `json:"inputs,omitempty"`

	// Outputs are files, relative to the job's working directory, that are retrieved once the job finished.
	Outputs []string `json:"outputs,omitempty"`

	// OutputDir is where outputs are placed when they are fetched.
	OutputDir string `json:"output_dir,omitempty"`

	Environment map[string]string `json:"environment,omitempty"`

	// Stdout and Stderr name the files capturing the job's standard streams. They may be equal.
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`

	RequestedCores    int           `json:"requested_cores,omitempty"`
	RequestedMemory   int64         `json:"requested_memory,omitempty"`
	RequestedWalltime time.Duration `json:"requested_walltime,omitempty"`
}

var ErrInvalidJobSpec = errors.New("invalid job spec")

// Validate checks the spec for errors that would make every submission fail.
func (s JobSpec) Validate() error {
	if len(s.Arguments) == 0 || s.Arguments[0] == "" {
		return fmt.Errorf("%w: no command given", ErrInvalidJobSpec)
	}

	for _, o := range s.Outputs {
		if filepath.IsAbs(o) {
			return fmt.Errorf("%w: output %q must be a relative path", ErrInvalidJobSpec, o)
		}
	}

	if s.RequestedCores < 0 {
		return fmt.Errorf("%w: requested cores must not be negative", ErrInvalidJobSpec)
	}

	if s.RequestedMemory < 0 {
		return fmt.Errorf("%w: requested memory must not be negative", ErrInvalidJobSpec)
	}

	if s.RequestedWalltime < 0 {
		return fmt.Errorf("%w: requested walltime must not be negative", ErrInvalidJobSpec)
	}

	return nil
}

// Command returns the first argument of the spec.
func (s JobSpec) Command() string {
	if len(s.Arguments) == 0 {
		return ""
	}

	return s.Arguments[0]
}

type JobState int

const (
	// JobPending is a job accepted by the backend but not started yet
	JobPending JobState = iota
	JobRunning
	// JobStopped is a job the backend suspended; it needs outside intervention to continue
	JobStopped
	// JobDone is a finished job, successful or not. See Status.ExitCode.
	JobDone
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobStopped:
		return "stopped"
	case JobDone:
		return "done"
	}

	return fmt.Sprintf("JobState(%d)", int(s))
}

// Status is the state of a job as reported by the backend.
type Status struct {
	State    JobState
	ExitCode int

	// Message is an optional human readable explanation, e.g. why a job failed
	Message string
}

// Output is the retrieved result of a finished job.
type Output struct {
	// Dir is the directory the output files were placed in, if any
	Dir string `json:"dir,omitempty"`

	// Files lists the retrieved output files
	Files []string `json:"files,omitempty"`

	// Data is the in-memory result of a job, if the backend produces one
	Data []byte `json:"data,omitempty"`
}
