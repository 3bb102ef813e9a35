//go:build property

package watcher

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDebouncerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Property: a flushed burst holds each path once, with its last event
	properties.Property("flush keeps the last event per path", prop.ForAll(
		func(pathIdx []int, types []int) bool {
			var (
				mu      sync.Mutex
				batches [][]ChangeEvent
			)
			d := NewDebouncer(time.Hour, func(events []ChangeEvent) {
				mu.Lock()
				batches = append(batches, events)
				mu.Unlock()
			})

			last := make(map[string]EventType)
			for i, p := range pathIdx {
				ev := ChangeEvent{Path: fmt.Sprintf("f%d.html", p), Type: EventType(types[i%len(types)])}
				d.Add(ev)
				last[ev.Path] = ev.Type
			}
			d.Flush()

			if len(batches) != 1 || len(batches[0]) != len(last) {
				return false
			}
			for i, ev := range batches[0] {
				if last[ev.Path] != ev.Type {
					return false
				}
				if i > 0 && batches[0][i-1].Path >= ev.Path {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.IntRange(0, 6)).SuchThat(func(v []int) bool { return len(v) > 0 }),
		gen.SliceOfN(4, gen.IntRange(0, 3)),
	))

	// Property: nothing is emitted after Stop
	properties.Property("stop discards pending events", prop.ForAll(
		func(n int) bool {
			emitted := false
			d := NewDebouncer(time.Hour, func([]ChangeEvent) { emitted = true })
			for i := 0; i < n; i++ {
				d.Add(ChangeEvent{Path: fmt.Sprintf("f%d", i)})
			}
			d.Stop()
			d.Flush()
			return !emitted && d.Pending() == 0
		},
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}
