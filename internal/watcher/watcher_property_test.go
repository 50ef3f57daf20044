//go:build property

package watcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDebouncerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 25

	properties := gopter.NewProperties(parameters)

	properties.Property("a burst inside one window yields exactly one batch", prop.ForAll(
		func(eventCount int, distinct int) bool {
			d := NewDebouncer(40 * time.Millisecond)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go d.Run(ctx)

			for i := 0; i < eventCount; i++ {
				d.Add(ChangeEvent{Path: fmt.Sprintf("f%d.md", i%distinct)})
			}

			var batch []ChangeEvent
			select {
			case batch = <-d.Output():
			case <-time.After(2 * time.Second):
				return false
			}

			select {
			case <-d.Output():
				return false
			case <-time.After(120 * time.Millisecond):
			}

			return len(batch) == min(eventCount, distinct)
		},
		gen.IntRange(1, 50),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
