package main

import (
	"context"
	"fmt"
	"log"

	"github.com/cschleiden/go-taskflow/engine"
	"github.com/cschleiden/go-taskflow/samples"
	"github.com/cschleiden/go-taskflow/workflow"
)

func main() {
	ctx := context.Background()

	b := samples.GetBackend()
	defer b.Close()

	// At most two applications run at the same time, no matter how many sequences are active
	e := samples.NewEngine("parallel-of-sequences", b, engine.WithMaxInFlight(2))

	sequences := []workflow.Task{}
	for i := 0; i < 3; i++ {
		seq, err := workflow.NewSequential(fmt.Sprintf("seq-%d", i), []workflow.Task{
			samples.Job("prepare", "echo", "prepare", fmt.Sprint(i)),
			samples.Job("compute", "sleep", "0.5"),
			samples.Job("collect", "echo", "collect", fmt.Sprint(i)),
		})
		if err != nil {
			panic(err)
		}

		sequences = append(sequences, seq)
	}

	// One sequence fails, its siblings still complete
	failing, err := workflow.NewSequential("seq-failing", []workflow.Task{
		samples.Job("prepare", "echo", "prepare"),
		samples.Job("compute", "false"),
	}, workflow.WithNext(workflow.AbortOnFailure))
	if err != nil {
		panic(err)
	}
	sequences = append(sequences, failing)

	wf, err := workflow.NewParallel("parallel-of-sequences", sequences)
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

	stats := e.Stats()
	log.Printf("%d tasks, %d ok, %d failed", stats.Total, stats.OK, stats.Failed)
}
