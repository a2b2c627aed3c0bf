// Package broker hands out execution slots to the job. LocalGateway serves
// them from a fixed in-process pool.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mattjoyce/jobcluster/internal/log"
)

var (
	// ErrInsufficientSlots means the pool cannot satisfy a request.
	ErrInsufficientSlots = errors.New("insufficient slots")
	// ErrUnknownAllocation is returned when releasing an allocation twice.
	ErrUnknownAllocation = errors.New("unknown allocation")
)

type SlotRequest struct {
	JobID string
	Slots int
}

type Allocation struct {
	ID    string
	JobID string
	Slots int
}

// LocalGateway is a slot pool with a fixed capacity.
type LocalGateway struct {
	capacity int
	logger   *slog.Logger

	mu          sync.Mutex
	allocations map[string]Allocation
	used        int
}

func NewLocalGateway(capacity int) (*LocalGateway, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("slot capacity must be > 0")
	}
	return &LocalGateway{
		capacity:    capacity,
		logger:      log.WithComponent("broker"),
		allocations: make(map[string]Allocation),
	}, nil
}

// RequestSlots reserves req.Slots slots. It never blocks waiting for capacity.
func (g *LocalGateway) RequestSlots(ctx context.Context, req SlotRequest) (*Allocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Slots <= 0 {
		return nil, fmt.Errorf("slot request for job %s must ask for at least one slot", req.JobID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if free := g.capacity - g.used; req.Slots > free {
		return nil, fmt.Errorf("%w: job %s requested %d, %d of %d free", ErrInsufficientSlots, req.JobID, req.Slots, free, g.capacity)
	}

	alloc := Allocation{ID: uuid.NewString(), JobID: req.JobID, Slots: req.Slots}
	g.allocations[alloc.ID] = alloc
	g.used += req.Slots
	g.logger.Info("slots allocated", "job_id", req.JobID, "allocation_id", alloc.ID, "slots", req.Slots)
	return &alloc, nil
}

// ReleaseSlots returns an allocation's slots to the pool.
func (g *LocalGateway) ReleaseSlots(_ context.Context, allocationID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	alloc, ok := g.allocations[allocationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAllocation, allocationID)
	}
	delete(g.allocations, allocationID)
	g.used -= alloc.Slots
	g.logger.Info("slots released", "job_id", alloc.JobID, "allocation_id", allocationID, "slots", alloc.Slots)
	return nil
}

// Available returns the number of free slots.
func (g *LocalGateway) Available() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.capacity - g.used
}
