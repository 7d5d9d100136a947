// pftrace-load drives a mixed workload across several goroutines
// directly against the Recorder callback contract, producing a trace
// with one track per worker. It exists to eyeball per-goroutine track
// assignment and flow arrows in the Perfetto UI under contention.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pftrace/pftrace"
	"github.com/pftrace/pftrace/sinks"
	"github.com/pftrace/pftrace/util/build"
)

var (
	workers    = flag.Int("workers", 4, "Number of worker goroutines.")
	iterations = flag.Int("iterations", 10, "Workload iterations per worker.")
	out        = flag.String("out", "trace_load.pftrace", "Path of the output trace file.")
	debug      = flag.Bool("debug", false, "Turns on debug messages.")
)

// spanIDs mints host-framework span ids; the load driver is its own
// host framework.
var spanIDs atomic.Uint64

var sharedResource sync.Mutex

func main() {
	flag.Parse()
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logger := logrus.NewEntry(logrus.StandardLogger())
	logger.WithFields(build.Fields()).Debug("Starting pftrace-load")

	traceCtx := pftrace.New(
		pftrace.WithProcessName("pftrace-load"),
		pftrace.WithLogger(logger),
	)
	recorder := pftrace.NewRecorder(traceCtx)

	var wg sync.WaitGroup
	wg.Add(*workers)
	for i := 0; i < *workers; i++ {
		go func(worker int) {
			defer wg.Done()
			runWorker(recorder, worker, *iterations)
		}(i)
	}
	wg.Wait()

	if violations := recorder.ConsistencyViolations(); violations > 0 {
		logger.WithField("violations", violations).
			Error("Recorder observed consistency violations")
	}

	file, err := os.Create(*out)
	if err != nil {
		logger.WithError(err).Fatal("Error creating trace file.")
	}
	written, err := traceCtx.WriteTo(file)
	if err != nil {
		logger.WithError(err).Fatal("Error writing trace.")
	}
	if err := file.Close(); err != nil {
		logger.WithError(err).Fatal("Error closing trace file.")
	}
	logger.WithFields(logrus.Fields{
		"path":  *out,
		"bytes": written,
	}).Info(sinks.FlushCompleteMessage)
	fmt.Println("View it at: https://ui.perfetto.dev/")
}

// runWorker owns one goroutine's workload loop. Every iteration picks
// one workload span; the root span ties the worker's whole run
// together so child slices flow back to it.
func runWorker(recorder *pftrace.Recorder, worker, iterations int) {
	root := spanIDs.Add(1)
	recorder.OnSpanStart(pftrace.SpanStart{
		ID:    root,
		Name:  "worker",
		Level: "INFO",
		Fields: []pftrace.Field{
			{Key: "worker", Value: worker},
		},
	})
	defer recorder.OnSpanEnd(pftrace.SpanEnd{ID: root})

	for i := 0; i < iterations; i++ {
		switch i % 3 {
		case 0:
			cpuWork(recorder, root)
		case 1:
			sleepWork(recorder, root)
		case 2:
			lockWork(recorder, root)
		}
	}
}

func startChild(recorder *pftrace.Recorder, parent uint64, name string) uint64 {
	id := spanIDs.Add(1)
	recorder.OnSpanStart(pftrace.SpanStart{
		ID:     id,
		Parent: parent,
		Name:   name,
		Level:  "INFO",
	})
	return id
}

func cpuWork(recorder *pftrace.Recorder, parent uint64) {
	id := startChild(recorder, parent, "cpu_work")
	defer recorder.OnSpanEnd(pftrace.SpanEnd{ID: id})

	sum := 0
	for i := 0; i < 1<<16; i++ {
		sum += i * i
	}
	recorder.OnEvent(pftrace.PointEvent{
		Span:   id,
		Name:   "computed",
		Target: "load::cpu",
		Level:  "DEBUG",
		Fields: []pftrace.Field{{Key: "sum", Value: sum}},
	})
}

func sleepWork(recorder *pftrace.Recorder, parent uint64) {
	id := startChild(recorder, parent, "sleep_work")
	defer recorder.OnSpanEnd(pftrace.SpanEnd{ID: id})

	time.Sleep(time.Duration(1+rand.Intn(5)) * time.Millisecond)
}

func lockWork(recorder *pftrace.Recorder, parent uint64) {
	id := startChild(recorder, parent, "lock_work")
	defer recorder.OnSpanEnd(pftrace.SpanEnd{ID: id})

	sharedResource.Lock()
	defer sharedResource.Unlock()
	recorder.OnEvent(pftrace.PointEvent{
		Span:   id,
		Name:   "acquired",
		Target: "load::lock",
		Level:  "DEBUG",
	})
	time.Sleep(time.Millisecond)
}
