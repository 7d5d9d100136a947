// pftrace-demo runs a small instrumented workload through the
// OpenTelemetry bridge and writes the resulting Perfetto trace to the
// configured sinks.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/pftrace/pftrace"
	"github.com/pftrace/pftrace/otelbridge"
	"github.com/pftrace/pftrace/sinks"
	"github.com/pftrace/pftrace/sinks/blackhole"
	"github.com/pftrace/pftrace/sinks/localfile"
	"github.com/pftrace/pftrace/util/build"
)

var (
	configFile = flag.String("f", "", "The pftrace config file to read for settings.")
	out        = flag.String("out", "trace_basic.pftrace", "Path of the output trace file. Ignored if a config file is given.")
	debug      = flag.Bool("debug", false, "Turns on debug messages.")
)

var sinkTypes = pftrace.TraceSinkTypes{
	"localfile": localfile.Create,
	"blackhole": func(
		string, *logrus.Entry, interface{},
	) (sinks.TraceSink, error) {
		return blackhole.NewSink(), nil
	},
}

func main() {
	flag.Parse()
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logger := logrus.NewEntry(logrus.StandardLogger())
	logger.WithFields(build.Fields()).Debug("Starting pftrace-demo")

	config := pftrace.Config{
		ProcessName: "pftrace-demo",
		Sinks: []pftrace.SinkConfig{{
			Kind: "localfile",
			Name: "localfile",
			Config: map[string]interface{}{
				"path": *out,
			},
		}},
	}
	if *configFile != "" {
		conf, err := pftrace.ReadConfig(*configFile)
		if err != nil {
			logger.WithError(err).Fatal("Error reading configuration file.")
		}
		config = conf
		if config.Debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
		if config.ProcessName == "" {
			config.ProcessName = "pftrace-demo"
		}
	}

	created, err := pftrace.CreateSinks(config, sinkTypes, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error creating sinks.")
	}

	traceCtx := pftrace.New(
		pftrace.WithProcessName(config.ProcessName),
		pftrace.WithLogger(logger),
	)
	recorder := pftrace.NewRecorder(traceCtx)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(otelbridge.NewProcessor(recorder)),
	)
	tracer := provider.Tracer("pftrace-demo")

	run(tracer)

	if err := provider.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Fatal("Error shutting down tracer provider.")
	}

	// One encode, delivered to every configured sink.
	data, err := traceCtx.Flush()
	if err != nil {
		logger.WithError(err).Fatal("Error flushing trace.")
	}
	for _, sink := range created {
		if err := sink.Write(context.Background(), data); err != nil {
			logger.WithError(err).WithField("sink", sink.Name()).
				Fatal("Error writing trace.")
		}
		if err := sink.Close(); err != nil {
			logger.WithError(err).WithField("sink", sink.Name()).
				Warn("Error closing sink.")
		}
	}
	logger.WithField("bytes", len(data)).Debug(sinks.FlushCompleteMessage)

	fmt.Println("View it at: https://ui.perfetto.dev/")
}

func run(tracer oteltrace.Tracer) {
	ctx, root := tracer.Start(context.Background(), "main")
	root.AddEvent("Application started")

	doWork(ctx, tracer, "task_1", 80*time.Millisecond)
	doWork(ctx, tracer, "task_2", 120*time.Millisecond)
	complexOperation(ctx, tracer)

	root.AddEvent("Application finished")
	root.End()
}

// doWork simulates some work being done.
func doWork(
	ctx context.Context, tracer oteltrace.Tracer, task string,
	duration time.Duration,
) {
	_, span := tracer.Start(ctx, "work",
		oteltrace.WithAttributes(attribute.String("task", task)))
	defer span.End()
	span.AddEvent("Starting work")
	time.Sleep(duration)
	span.AddEvent("Finished work")
}

// complexOperation demonstrates nested spans.
func complexOperation(ctx context.Context, tracer oteltrace.Tracer) {
	ctx, span := tracer.Start(ctx, "complex_operation")
	defer span.End()

	phase(ctx, tracer, "phase_1", "initialization", 50*time.Millisecond)
	phase(ctx, tracer, "phase_2", "processing", 100*time.Millisecond)
	phase(ctx, tracer, "phase_3", "finalization", 30*time.Millisecond)
}

func phase(
	ctx context.Context, tracer oteltrace.Tracer, name, task string,
	duration time.Duration,
) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	doWork(ctx, tracer, task, duration)
}
