// Package taskpool runs independent tasks on a bounded set of workers.
//
// Failures are isolated: one task failing (or panicking) never cancels its
// siblings, and the caller gets one structured result per task after all of
// them have finished. The per-partition image builds run on this pool.
package taskpool

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// DefaultWidth is the fixed worker count used by the pipeline. It is
// deliberately independent of the core count: the tasks are dominated by
// external tool processes and disk I/O, not by Go-side CPU work.
const DefaultWidth = 4

type Task struct {
	Name string
	Run  func() error
}

type Result struct {
	Name string
	Err  error
}

// Run executes the tasks on at most width concurrent workers and returns one
// result per task, in completion order. A nil or zero width falls back to
// DefaultWidth.
func Run(width int, tasks []Task) []Result {
	if width <= 0 {
		width = DefaultWidth
	}

	sem := make(chan struct{}, width)
	results := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results <- Result{Name: task.Name, Err: runCatchPanic(task)}
		}(task)
	}
	wg.Wait()
	close(results)

	collected := make([]Result, 0, len(tasks))
	for r := range results {
		collected = append(collected, r)
	}
	return collected
}

// Failed returns the subset of results that carry an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

func runCatchPanic(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("task", task.Name).Errorf("Task panicked: %v", r)
			err = fmt.Errorf("task '%s' panicked: %v", task.Name, r)
		}
	}()
	return task.Run()
}
