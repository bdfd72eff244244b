package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/backend/local"
	"github.com/cschleiden/go-taskflow/backend/memory"
	"github.com/cschleiden/go-taskflow/engine"
	"github.com/cschleiden/go-taskflow/store"
	"github.com/cschleiden/go-taskflow/store/sqlite"
	"github.com/cschleiden/go-taskflow/workflow"
)

var b = flag.String("backend", "memory", "Backend to use. Supported backends are:\n- memory\n- local\n")
var s = flag.String("store", "none", "Store to use. Supported stores are:\n- none\n- memory\n- sqlite\n")
var timeout = flag.Duration("timeout", time.Second*30, "Timeout for the benchmark run")
var runs = flag.Int("runs", 1, "Number of root workflows to add")
var depth = flag.Int("depth", 2, "Depth of mid collections")
var fanOut = flag.Int("fanout", 2, "Number of children per root/mid collection")
var leafFanOut = flag.Int("leaffanout", 2, "Number of applications per leaf sequence")
var maxInFlight = flag.Int("maxinflight", 0, "Maximum number of applications in flight, 0 for no limit")
var interval = flag.Duration("interval", 10*time.Millisecond, "Polling interval of the engine")
var format = flag.String("format", "text", "Output format. Supported formats are:\n- text\n- csv\n")

func main() {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	mm := newMemMetrics()
	ba := getBackend(*b, backend.WithLogger(slog.New(slog.DiscardHandler)), backend.WithMetrics(mm))
	defer ba.Close()

	opts := []engine.Option{
		engine.WithPollingInterval(*interval),
		engine.WithMaxInFlight(*maxInFlight),
	}

	if st := getStore(*s); st != nil {
		defer st.Close()
		opts = append(opts, engine.WithStore(st))
	}

	e := engine.New(ba, opts...)

	tasks := 0
	for i := 0; i < *runs; i++ {
		root, err := mid(fmt.Sprintf("root-%d", i), *depth)
		if err != nil {
			panic(err)
		}

		if err := e.Add(root); err != nil {
			panic(err)
		}

		workflow.Walk(root, func(workflow.Task, int) bool {
			tasks++
			return true
		})
	}

	start := time.Now()

	if err := e.Run(ctx); err != nil {
		panic(fmt.Errorf("running workflows: %w", err))
	}

	end := time.Now()

	stats := e.Stats()
	if stats.Failed > 0 {
		panic(fmt.Errorf("%d of %d tasks failed", stats.Failed, stats.Total))
	}

	switch *format {
	case "text":
		log.Println("Ran", *runs, "root workflows with", tasks, "tasks in", end.Sub(start).Seconds(), "seconds")
		mm.Print()

	case "csv":
		fmt.Printf(
			"%s,%s,%v,%d,%d,%d,%d,%d\n",
			*b, *s, end.Sub(start).Seconds(), *runs, *depth, *fanOut, *leafFanOut, *maxInFlight)
	}
}

// mid alternates parallel and sequential collections down to depth, the leaves are sequences
// of applications.
func mid(name string, depth int) (workflow.Task, error) {
	if depth <= 0 {
		return leaf(name)
	}

	children := make([]workflow.Task, 0, *fanOut)
	for i := 0; i < *fanOut; i++ {
		c, err := mid(fmt.Sprintf("%s.%d", name, i), depth-1)
		if err != nil {
			return nil, err
		}

		children = append(children, c)
	}

	if depth%2 == 0 {
		return workflow.NewParallel(name, children)
	}

	return workflow.NewSequential(name, children)
}

func leaf(name string) (workflow.Task, error) {
	apps := make([]workflow.Task, 0, *leafFanOut)
	for i := 0; i < *leafFanOut; i++ {
		a, err := workflow.NewApplication(fmt.Sprintf("%s.app-%d", name, i), backend.JobSpec{Arguments: []string{"true"}})
		if err != nil {
			return nil, err
		}

		apps = append(apps, a)
	}

	return workflow.NewSequential(name, apps)
}

func getBackend(b string, opt ...backend.BackendOption) backend.Backend {
	switch b {
	case "memory":
		return memory.NewMemoryBackend(
			memory.WithJob("true", func(context.Context, backend.JobSpec) ([]byte, error) { return nil, nil }),
			memory.WithBackendOptions(opt...),
		)

	case "local":
		lb, err := local.NewLocalBackend(local.WithBackendOptions(opt...))
		if err != nil {
			panic(err)
		}

		return lb

	default:
		panic("unknown backend " + b)
	}
}

func getStore(s string) store.Store {
	switch s {
	case "none":
		return nil

	case "memory":
		return sqlite.NewInMemoryStore()

	case "sqlite":
		return sqlite.NewSqliteStore("bench.sqlite")

	default:
		panic("unknown store " + s)
	}
}
