package filesystem

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/brettbedarf/isofs/config"
	"github.com/brettbedarf/isofs/internal/util"
	"github.com/google/uuid"
)

// Controller owns one isolated tree: its root directory and the quota every
// node of the tree draws from.
type Controller struct {
	id     uuid.UUID
	seed   uint64 // metadata hash seed
	limits *FSLimits
	root   *Node
	closed atomic.Bool
}

// NewController builds an empty tree. The root directory takes one node slot.
func NewController(cfg *config.Config) (*Controller, error) {
	logger := util.GetLogger("Controller")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	limits := newFSLimits(cfg.MaxSize, cfg.MaxNodes, cfg.MinSector, cfg.MaxSector)
	root, err := newDirNode(limits, nil)
	if err != nil {
		logger.Error().Err(err).Uint64("maxNodes", cfg.MaxNodes).Msg("Failed to reserve root directory")
		return nil, err
	}

	id := uuid.New()
	c := &Controller{
		id:     id,
		seed:   binary.LittleEndian.Uint64(id[:8]),
		limits: limits,
		root:   root,
	}
	logger.Debug().
		Str("id", id.String()).
		Uint64("maxSize", cfg.MaxSize).
		Uint64("maxNodes", cfg.MaxNodes).
		Int("minSector", cfg.MinSector).
		Int("maxSector", cfg.MaxSector).
		Msg("Created controller")
	return c, nil
}

func (c *Controller) ID() uuid.UUID { return c.id }

// Root returns the root directory node.
func (c *Controller) Root() *Node { return c.root }

// RootCap returns a read-write capability over the root.
func (c *Controller) RootCap() CapWrapper {
	return NewCapWrapper(c.root, AccessReadWrite)
}

func (c *Controller) Limits() *FSLimits { return c.limits }

// Remaining returns the bytes and nodes that can still be allocated.
func (c *Controller) Remaining() (size, nodes uint64) {
	return c.limits.Remaining()
}

// Close tears the tree down and returns its quota. Nodes kept alive by open
// accessors are destroyed once those close. Calling Close again is a no-op.
func (c *Controller) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.root.release()
	logger := util.GetLogger("Controller")
	logger.Debug().Str("id", c.id.String()).Msg("Closed controller")
}
