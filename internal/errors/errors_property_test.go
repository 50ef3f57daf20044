//go:build property

package errors

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCollectorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("concurrent addition loses nothing", prop.ForAll(
		func(goroutineCount int, perGoroutine int) bool {
			collector := NewCollector()

			var wg sync.WaitGroup
			for g := 0; g < goroutineCount; g++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for e := 0; e < perGoroutine; e++ {
						file := fmt.Sprintf("post_%d_%d.md", id, e)
						collector.AddError(FrontMatterMalformed(file, "bad", nil))
					}
				}(g)
			}
			wg.Wait()

			return collector.Len() == goroutineCount*perGoroutine
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 50),
	))

	properties.Property("issues come back sorted by file", prop.ForAll(
		func(files []string) bool {
			collector := NewCollector()
			for _, f := range files {
				collector.AddWarning(FileUnreadable(f, nil))
			}

			issues := collector.Issues()

			return sort.SliceIsSorted(issues, func(i, j int) bool {
				return issues[i].File < issues[j].File
			})
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
