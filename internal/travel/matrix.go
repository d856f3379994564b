// Package travel computes the travel-time matrix between POI locations,
// exploiting the bounded worker pool the concurrency model calls for when
// the point count exceeds the commercial batch endpoint's 25x25 ceiling.
package travel

import (
	"context"

	"golang.org/x/sync/semaphore"

	"travelorch/internal/models"
	"travelorch/internal/providers"
)

const batchCellLimit = 25 // |points| <= 25 uses a single batch call
const defaultWorkerWeight = 8

// Matrix computes travel times between every ordered pair of points. When
// |points| <= 25 it delegates to the router's batch path; otherwise it
// fans out pairwise calls through a bounded semaphore-guarded pool. Any
// individual cell's failure degrades independently (the router's own
// chain already falls back to haversine, so Matrix itself never errors).
func Matrix(ctx context.Context, router *providers.Router, points []models.Location, mode string) map[[2]int]providers.TravelResult {
	if len(points) <= batchCellLimit {
		return router.Matrix(ctx, points, mode)
	}
	return fanOut(ctx, router, points, mode, defaultWorkerWeight)
}

// fanOut issues pairwise calls bounded by a weighted semaphore, matching
// the "bounded worker pool" requirement for the travel-time matrix's
// larger-than-batch case.
func fanOut(ctx context.Context, router *providers.Router, points []models.Location, mode string, workers int64) map[[2]int]providers.TravelResult {
	sem := semaphore.NewWeighted(workers)
	type cell struct {
		i, j int
		res  providers.TravelResult
	}
	n := len(points)
	resultsCh := make(chan cell, n*n)
	dispatched := 0

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			i, j := i, j
			if err := sem.Acquire(ctx, 1); err != nil {
				continue
			}
			dispatched++
			go func() {
				defer sem.Release(1)
				res := router.TravelTime(ctx, points[i], points[j], mode)
				resultsCh <- cell{i: i, j: j, res: res}
			}()
		}
	}
	// Drain exactly the number of cells we dispatched.
	out := make(map[[2]int]providers.TravelResult, dispatched)
	for k := 0; k < dispatched; k++ {
		c := <-resultsCh
		out[[2]int{c.i, c.j}] = c.res
		// Symmetrize last-write-wins: the reverse cell, if not yet
		// computed independently, gets the same estimate as a starting
		// point until its own call lands.
		if _, ok := out[[2]int{c.j, c.i}]; !ok {
			out[[2]int{c.j, c.i}] = c.res
		}
	}
	return out
}
