package limits

// Constraints defines the OS-level resource ceiling for one worker
type Constraints struct {
	// MemoryLimitMB is the resident-memory ceiling in MB (0 = unlimited)
	MemoryLimitMB int64

	// NicePriority is the scheduling priority (-20 to 19, default 0)
	NicePriority int

	// OOMScoreAdj biases the kernel OOM killer (-1000 to 1000, 0 = default)
	OOMScoreAdj int
}

// DefaultConstraints returns unconstrained defaults
func DefaultConstraints() *Constraints {
	return &Constraints{}
}

// Validate clamps constraint values into acceptable ranges
func (c *Constraints) Validate() error {
	if c.MemoryLimitMB < 0 {
		c.MemoryLimitMB = 0
	}

	if c.NicePriority < -20 {
		c.NicePriority = -20
	} else if c.NicePriority > 19 {
		c.NicePriority = 19
	}

	if c.OOMScoreAdj < -1000 {
		c.OOMScoreAdj = -1000
	} else if c.OOMScoreAdj > 1000 {
		c.OOMScoreAdj = 1000
	}

	return nil
}
