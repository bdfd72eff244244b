package main

import (
	"context"
	"log"
	"strings"

	"github.com/cschleiden/go-taskflow/samples"
	"github.com/cschleiden/go-taskflow/workflow"
)

func output(t workflow.Task) string {
	if a, ok := t.(*workflow.Application); ok && a.Output() != nil {
		return strings.TrimSpace(string(a.Output().Data))
	}

	return ""
}

func main() {
	ctx := context.Background()

	b := samples.GetBackend()
	defer b.Close()

	e := samples.NewEngine("staged", b)

	// Every stage is built from the output of the previous one
	wf, err := workflow.NewStaged("staged", []workflow.StageFunc{
		func(done []workflow.Task) (workflow.Task, error) {
			return samples.Job("download", "echo", "dataset-42"), nil
		},
		func(done []workflow.Task) (workflow.Task, error) {
			return samples.Job("analyze", "echo", "analyzed", output(done[0])), nil
		},
		func(done []workflow.Task) (workflow.Task, error) {
			if output(done[1]) == "" {
				// Nothing to report, end the collection early
				return nil, nil
			}

			return samples.Job("report", "echo", "report for", output(done[1])), nil
		},
	})
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
	log.Println("Final output:", output(wf.Task(wf.Len()-1)))
}
