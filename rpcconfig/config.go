// Package rpcconfig provides validated construction parameters for the
// client and server engines, modelled on the builder-with-Validate
// pattern used for configuration objects elsewhere in the stack
// (timeout, queue size, pool size, all with sane defaults a caller may
// override one at a time).
package rpcconfig

import (
	"fmt"
	"time"
)

// ClientConfig holds the construction parameters for a client engine:
// reply deadline, poll/reaper tuning, and fragment limit.
type ClientConfig struct {
	// Timeout is the per-call reply deadline. The reaper
	// guarantees a stuck call surfaces ReplyTimeout by 2*Timeout.
	Timeout time.Duration

	// ReaperInterval is how often the deadline sweep runs. Defaults to
	// Timeout if unset at Validate time.
	ReaperInterval time.Duration

	// FragmentLimit bounds how many frames one reply-poll iteration
	// delivers before yielding, so one slow poll iteration can't starve other work.
	FragmentLimit int

	// SendDeadline defaults to Timeout if unset. The client engine does
	// not read it: a back-pressured Offer is retried until the call's
	// Timeout-derived deadline, then the call fails with SendTimeout.
	SendDeadline time.Duration
}

// DefaultClientConfig returns the recommended defaults: a 5 second
// reply timeout, fragment limit of 10, and reaper
// interval equal to the timeout.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:        5 * time.Second,
		ReaperInterval: 5 * time.Second,
		FragmentLimit:  10,
		SendDeadline:   5 * time.Second,
	}
}

// Validate fills in zero-valued fields with their defaults and rejects
// nonsensical combinations.
func (c *ClientConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("rpcconfig: Timeout must be positive, got %v", c.Timeout)
	}
	if c.ReaperInterval <= 0 {
		c.ReaperInterval = c.Timeout
	}
	if c.FragmentLimit <= 0 {
		c.FragmentLimit = 10
	}
	if c.SendDeadline <= 0 {
		c.SendDeadline = c.Timeout
	}
	return nil
}

// ServerConfig holds the construction parameters for a server engine:
// worker pool sizing, queue depth, and poll tuning.
type ServerConfig struct {
	// CoreWorkers and MaxWorkers bound the worker pool, mirroring
	// ThreadPoolExecutor's core/max distinction; this implementation
	// runs a fixed pool of MaxWorkers goroutines (Go has no elastic
	// thread pool primitive), so CoreWorkers is kept only to preserve
	// the construction parameter's meaning and is currently unused
	// beyond validation.
	CoreWorkers int
	MaxWorkers  int

	// QueueCapacity bounds the worker backlog; Offered work beyond this
	// is rejected synchronously with Overloaded.
	QueueCapacity int

	// KeepAlive is how long an idle worker above CoreWorkers waits
	// before exiting — carried for parity with the construction
	// parameter's original meaning; this pool does not currently shrink
	// below MaxWorkers, so it is not yet consulted.
	KeepAlive time.Duration

	// FragmentLimit bounds how many frames one poll-loop iteration
	// delivers before yielding.
	FragmentLimit int

	// SendDeadline bounds how long a stream sink retries a
	// back-pressured reply Offer before recording a dropped reply.
	SendDeadline time.Duration
}

// DefaultServerConfig returns sane defaults: 8 core/max workers, a
// queue of 256, 60s keep-alive, fragment limit 10.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		CoreWorkers:   8,
		MaxWorkers:    8,
		QueueCapacity: 256,
		KeepAlive:     60 * time.Second,
		FragmentLimit: 10,
		SendDeadline:  time.Second,
	}
}

func (c *ServerConfig) Validate() error {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 8
	}
	if c.CoreWorkers <= 0 {
		c.CoreWorkers = c.MaxWorkers
	}
	if c.CoreWorkers > c.MaxWorkers {
		return fmt.Errorf("rpcconfig: CoreWorkers (%d) must not exceed MaxWorkers (%d)", c.CoreWorkers, c.MaxWorkers)
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 256
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.FragmentLimit <= 0 {
		c.FragmentLimit = 10
	}
	if c.SendDeadline <= 0 {
		c.SendDeadline = time.Second
	}
	return nil
}
