package main

import (
	"context"
	"log"
	"time"

	"github.com/cschleiden/go-taskflow/engine"
	"github.com/cschleiden/go-taskflow/samples"
	"github.com/cschleiden/go-taskflow/workflow"
)

func main() {
	ctx := context.Background()

	b := samples.GetBackend()
	defer b.Close()

	e := samples.NewEngine("retries", b, engine.WithForgetTerminated(time.Minute))

	// Fails every time, gives up after three attempts
	flaky, err := workflow.NewRetryable("flaky", samples.Job("flaky", "false"), workflow.WithRetry(workflow.RetryOptions{
		MaxAttempts:        3,
		FirstRetryInterval: 200 * time.Millisecond,
		BackoffCoefficient: 2,
	}))
	if err != nil {
		panic(err)
	}

	// Succeeds right away, never retried
	stable, err := workflow.NewRetryable("stable", samples.Job("stable", "echo", "stable"))
	if err != nil {
		panic(err)
	}

	for _, t := range []workflow.Task{flaky, stable} {
		if err := e.Add(t); err != nil {
			panic(err)
		}
	}

	if err := e.Run(ctx); err != nil {
		log.Fatal(err)
	}

	for _, id := range []string{flaky.ID(), stable.ID()} {
		snap, ok := e.Forgotten(id)
		if !ok {
			continue
		}

		log.Printf("%s: %d attempt(s), %v", snap.Name, snap.Attempts, snap.ExitStatus)
	}
}
