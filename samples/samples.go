// Package samples contains helpers shared by the sample programs.
package samples

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/backend/local"
	"github.com/cschleiden/go-taskflow/backend/memory"
	"github.com/cschleiden/go-taskflow/diag"
	"github.com/cschleiden/go-taskflow/engine"
	"github.com/cschleiden/go-taskflow/store"
	"github.com/cschleiden/go-taskflow/store/mysql"
	"github.com/cschleiden/go-taskflow/store/redis"
	"github.com/cschleiden/go-taskflow/store/sqlite"
	"github.com/cschleiden/go-taskflow/workflow"
	redisv9 "github.com/redis/go-redis/v9"
)

var (
	backendName = flag.String("backend", "memory", "backend to use: memory, local")
	storeName   = flag.String("store", "none", "store to use: none, memory, sqlite, mysql, redis")
)

func parse() {
	if !flag.Parsed() {
		flag.Parse()
	}
}

// GetBackend returns the backend selected with -backend. The in-process backend emulates the
// echo, sleep, true and false utilities so samples behave the same on both backends.
func GetBackend(opt ...backend.BackendOption) backend.Backend {
	parse()

	switch *backendName {
	case "memory":
		return memory.NewMemoryBackend(
			memory.WithMaxParallelJobs(4),
			memory.WithJob("echo", echo),
			memory.WithJob("sleep", sleep),
			memory.WithJob("true", exit(0)),
			memory.WithJob("false", exit(1)),
			memory.WithBackendOptions(opt...),
		)

	case "local":
		b, err := local.NewLocalBackend(local.WithMaxParallelJobs(4), local.WithBackendOptions(opt...))
		if err != nil {
			panic(err)
		}

		return b

	default:
		panic("unknown backend " + *backendName)
	}
}

// GetStore returns the store selected with -store, nil for none.
func GetStore(name string, opt ...store.StoreOption) store.Store {
	parse()

	switch *storeName {
	case "none":
		return nil

	case "memory":
		return sqlite.NewInMemoryStore(sqlite.WithStoreOptions(opt...))

	case "sqlite":
		return sqlite.NewSqliteStore(name+".sqlite", sqlite.WithStoreOptions(opt...))

	case "mysql":
		return mysql.NewMysqlStore("localhost", 3306, "root", "root", name, mysql.WithStoreOptions(opt...))

	case "redis":
		rclient := redisv9.NewUniversalClient(&redisv9.UniversalOptions{
			Addrs:        []string{"localhost:6379"},
			Username:     "",
			Password:     "RedisPassw0rd",
			DB:           0,
			WriteTimeout: time.Second * 30,
			ReadTimeout:  time.Second * 30,
		})

		s, err := redis.NewRedisStore(rclient, redis.WithKeyPrefix(name+":"), redis.WithStoreOptions(opt...))
		if err != nil {
			panic(err)
		}

		return s

	default:
		panic("unknown store " + *storeName)
	}
}

// NewEngine returns an engine for b persisting to the store selected with -store.
func NewEngine(name string, b backend.Backend, opts ...engine.Option) *engine.Engine {
	opts = append([]engine.Option{engine.WithPollingInterval(100 * time.Millisecond)}, opts...)

	if s := GetStore(name); s != nil {
		opts = append(opts, engine.WithStore(s))
	}

	return engine.New(b, opts...)
}

// Job returns an application running the given command line.
func Job(name string, args ...string) *workflow.Application {
	a, err := workflow.NewApplication(name, backend.JobSpec{Name: name, Arguments: args})
	if err != nil {
		panic(err)
	}

	return a
}

// Print renders the tree of t to stdout.
func Print(t workflow.Task) {
	_ = diag.RenderTree(os.Stdout, t.Snapshot(), time.Now())
	fmt.Println()
}

func echo(_ context.Context, spec backend.JobSpec) ([]byte, error) {
	return []byte(strings.Join(spec.Arguments[1:], " ") + "\n"), nil
}

func sleep(ctx context.Context, spec backend.JobSpec) ([]byte, error) {
	d := time.Second
	if len(spec.Arguments) > 1 {
		s, err := strconv.ParseFloat(spec.Arguments[1], 64)
		if err != nil {
			return nil, &memory.ExitError{Code: 1, Err: err}
		}

		d = time.Duration(s * float64(time.Second))
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d):
		return nil, nil
	}
}

func exit(code int) memory.JobFunc {
	return func(context.Context, backend.JobSpec) ([]byte, error) {
		if code == 0 {
			return nil, nil
		}

		return nil, &memory.ExitError{Code: code}
	}
}
