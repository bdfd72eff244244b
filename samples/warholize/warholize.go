package main

import (
	"context"
	"fmt"
	"log"

	"github.com/cschleiden/go-taskflow/samples"
	"github.com/cschleiden/go-taskflow/workflow"
)

// warholize builds the classic workflow: convert the picture to grayscale, create tinted copies
// in parallel and merge them into a tiled result. Every step is an echo or sleep job.
func warholize(picture string, copies int) (workflow.Task, error) {
	tints := make([]workflow.Task, 0, copies)
	for i := 0; i < copies; i++ {
		tint, err := workflow.NewSequential(fmt.Sprintf("tint-%d", i), []workflow.Task{
			samples.Job("colormap", "echo", "colormap", picture, fmt.Sprint(i)),
			samples.Job("apply", "sleep", "0.3"),
		})
		if err != nil {
			return nil, err
		}

		tints = append(tints, tint)
	}

	tinted, err := workflow.NewParallel("tints", tints)
	if err != nil {
		return nil, err
	}

	return workflow.NewSequential("warholize", []workflow.Task{
		samples.Job("grayscale", "echo", "grayscale", picture),
		tinted,
		samples.Job("merge", "echo", "merge", fmt.Sprintf("%d tiles", copies)),
	})
}

func main() {
	ctx := context.Background()

	b := samples.GetBackend()
	defer b.Close()

	e := samples.NewEngine("warholize", b)

	wf, err := warholize("marilyn.png", 4)
	if err != nil {
		panic(err)
	}

	if err := e.Add(wf); err != nil {
		panic(err)
	}

	if err := e.Run(ctx); err != nil {
		log.Fatal(err)
	}

	samples.Print(wf)
	log.Println("Workflow finished:", wf.ExitStatus())
}
