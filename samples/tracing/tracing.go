package main

import (
	"context"
	"log"

	"github.com/cschleiden/go-taskflow/backend"
	"github.com/cschleiden/go-taskflow/samples"
	"github.com/cschleiden/go-taskflow/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("go-taskflow sample"),
		semconv.ServiceVersionKey.String("v0.1.0"),
		attribute.String("environment", "sample"),
	)

	stdoutexp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		panic(err)
	}

	oclient := otlptracehttp.NewClient(otlptracehttp.WithEndpoint("localhost:8360"), otlptracehttp.WithURLPath("/traces/otlp/v0.9"), otlptracehttp.WithInsecure())
	exp, err := otlptrace.New(ctx, oclient)
	if err != nil {
		panic(err)
	}

	tp := trace.NewTracerProvider(
		trace.WithSyncer(stdoutexp),
		trace.WithBatcher(exp),
		trace.WithResource(r),
	)

	otel.SetTracerProvider(tp)

	b := samples.GetBackend(backend.WithTracerProvider(tp))
	defer b.Close()

	e := samples.NewEngine("tracing", b)

	wf, err := workflow.NewSequential("traced", []workflow.Task{
		samples.Job("hello", "echo", "hello"),
		samples.Job("wait", "sleep", "0.2"),
		samples.Job("bye", "echo", "bye"),
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

	log.Println("Workflow finished:", wf.ExitStatus())

	if err := tp.Shutdown(context.Background()); err != nil {
		log.Println("shutting down tracer provider:", err)
	}
}
