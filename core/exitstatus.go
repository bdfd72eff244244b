package core

import "fmt"

// Exit codes recorded by the orchestration layer itself. Codes follow sysexits(3) where one fits.
const (
	ExitCodeSuccess     = 0
	ExitCodeFailure     = 1
	ExitCodeUnavailable = 69 // EX_UNAVAILABLE: the backend could not run the job
	ExitCodeSoftware    = 70 // EX_SOFTWARE: a hook or job function failed internally
	ExitCodeIOError     = 74 // EX_IOERR: output could not be retrieved
	ExitCodeKilled      = 137
)

// ExitStatus is the outcome of a terminated task.
type ExitStatus struct {
	Code    int      `json:"code"`
	Reason  string   `json:"reason,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

func Success() ExitStatus {
	return ExitStatus{Code: ExitCodeSuccess}
}

func Failed(code int, reason string) ExitStatus {
	return ExitStatus{Code: code, Reason: reason}
}

// FailedWith records err as the cause of the failure.
func FailedWith(code int, err error) ExitStatus {
	return ExitStatus{Code: code, Reason: err.Error(), Failure: FromError(err)}
}

func Killed() ExitStatus {
	return ExitStatus{Code: ExitCodeKilled, Reason: "killed"}
}

func (e ExitStatus) Succeeded() bool {
	return e.Code == ExitCodeSuccess && e.Failure == nil
}

// Err returns the failure of the task, if any.
func (e ExitStatus) Err() error {
	if e.Succeeded() {
		return nil
	}

	if e.Failure != nil {
		return e.Failure
	}

	return fmt.Errorf("exit code %d: %s", e.Code, e.Reason)
}

func (e ExitStatus) String() string {
	if e.Reason == "" {
		return fmt.Sprintf("exit %d", e.Code)
	}

	return fmt.Sprintf("exit %d (%s)", e.Code, e.Reason)
}
