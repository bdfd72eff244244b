package diag

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cschleiden/go-taskflow/core"
	"github.com/cschleiden/go-taskflow/workflow"
	"github.com/dustin/go-humanize"
)

// RenderTree writes one line per task of the tree of snap, children indented below their
// parent. Times are printed relative to now.
func RenderTree(w io.Writer, snap workflow.Snapshot, now time.Time) error {
	return renderNode(w, snap, "", "", now)
}

// Tree returns the rendering of RenderTree as a string.
func Tree(snap workflow.Snapshot, now time.Time) string {
	var sb strings.Builder
	_ = RenderTree(&sb, snap, now)

	return sb.String()
}

func renderNode(w io.Writer, snap workflow.Snapshot, prefix, childPrefix string, now time.Time) error {
	if _, err := fmt.Fprintf(w, "%s%s\n", prefix, describe(snap, now)); err != nil {
		return err
	}

	for i, c := range snap.Children {
		branch, indent := "├── ", "│   "
		if i == len(snap.Children)-1 {
			branch, indent = "└── ", "    "
		}

		if err := renderNode(w, c, childPrefix+branch, childPrefix+indent, now); err != nil {
			return err
		}
	}

	return nil
}

func describe(snap workflow.Snapshot, now time.Time) string {
	var sb strings.Builder

	name := snap.Name
	if name == "" {
		name = snap.ID
	}

	fmt.Fprintf(&sb, "%s [%s] %s", name, snap.Kind, snap.State)

	if snap.State == core.StateTerminated {
		if snap.ExitStatus.Succeeded() {
			sb.WriteString(" ok")
		} else {
			fmt.Fprintf(&sb, " failed (%d", snap.ExitStatus.Code)
			if snap.ExitStatus.Reason != "" {
				fmt.Fprintf(&sb, ": %s", snap.ExitStatus.Reason)
			}
			sb.WriteString(")")
		}
	}

	switch snap.Kind {
	case workflow.KindSequential, workflow.KindStaged:
		if len(snap.Children) > 0 {
			fmt.Fprintf(&sb, " %d/%d", min(snap.Cursor, len(snap.Children)), len(snap.Children))
		}

	case workflow.KindParallel:
		if n := len(snap.Children); n > 0 {
			done := 0
			for _, c := range snap.Children {
				if c.State == core.StateTerminated {
					done++
				}
			}
			fmt.Fprintf(&sb, " %d/%d", done, n)
		}

	case workflow.KindRetryable:
		if snap.Attempts > 0 {
			fmt.Fprintf(&sb, " %s attempt", humanize.Ordinal(snap.Attempts))
		}

	case workflow.KindApplication:
		if snap.Handle != "" {
			fmt.Fprintf(&sb, " job=%s", snap.Handle)
		}
	}

	if n := len(snap.History); n > 0 {
		fmt.Fprintf(&sb, " (%s)", humanize.RelTime(snap.History[n-1].At, now, "ago", "from now"))
	}

	return sb.String()
}
