package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/diag"
	"github.com/cschleiden/go-taskflow/metrics/prometheus"
	"github.com/cschleiden/go-taskflow/samples"
	"github.com/cschleiden/go-taskflow/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Serves the diagnostics api and Prometheus metrics while a long running workflow executes:
//
//	curl localhost:3000/api/
//	curl localhost:3000/api/<id>/tree
//	curl localhost:3000/metrics
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	b := samples.GetBackend(backend.WithMetrics(prometheus.NewClient(nil, prometheus.ClientOptions{})))
	defer b.Close()

	e := samples.NewEngine("web", b)

	tasks := []workflow.Task{}
	for i := 0; i < 10; i++ {
		tasks = append(tasks, samples.Job("step", "sleep", "2"))
	}

	wf, err := workflow.NewSequential("slow", tasks)
	if err != nil {
		panic(err)
	}

	if err := e.Add(wf); err != nil {
		panic(err)
	}

	mux := diag.NewServeMux(diag.EngineSource(e))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: ":3000", Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	log.Println("Serving diagnostics for", wf.ID(), "on :3000")

	if err := e.Run(ctx); err != nil {
		log.Println(err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
}
