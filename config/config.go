// Package config holds the tunables a grid node is constructed from,
// mirroring clusterrpc's pattern of a handful of Set* methods on the
// Server/Client types rather than a generic options struct — the same
// setters just collected onto one type since this core has one process
// role instead of separate client/server objects.
package config

import (
	"time"

	"github.com/nawzhin/distgrid/clock"
	"github.com/nawzhin/distgrid/rlog"
)

// NodeConfig is the full set of knobs a grid node is assembled from: its
// own listen address, the default invocation budget, retry policy, and
// local dispatch sizing.
type NodeConfig struct {
	ListenAddr string
	ListenPort uint16

	// DefaultCallTimeoutMillis is used whenever an Invocation Future isn't
	// given an explicit positive callTimeout.
	DefaultCallTimeoutMillis int64

	// DefaultTryCount and DefaultTryPauseMillis seed the retry budget for
	// invocations that don't override it per-call.
	DefaultTryCount       int
	DefaultTryPauseMillis int64

	// LocalWorkers sizes the local operation dispatch pool; LocalBacklog
	// bounds how much locally-dispatched work may queue before this node
	// starts shedding.
	LocalWorkers int
	LocalBacklog int

	// PublicKeyFile/PrivateKeyFile locate this node's CURVE keypair on
	// disk; this package only records them. Both empty means "run without
	// transport security", same default posture as a clusterrpc Server
	// constructed with a nil security manager.
	PublicKeyFile  string
	PrivateKeyFile string

	Loglevel rlog.Level
}

// DefaultConfig returns the setting this core ships with out of the box:
// a 5s per-attempt budget, 3 attempts, 250ms between retries, and 4 local
// workers with a modest backlog, tuned the same conservative direction as
// clusterrpc's own 3-second client timeout default.
func DefaultConfig(listenAddr string, listenPort uint16) *NodeConfig {
	return &NodeConfig{
		ListenAddr:               listenAddr,
		ListenPort:               listenPort,
		DefaultCallTimeoutMillis: clock.Millis(5 * time.Second),
		DefaultTryCount:          3,
		DefaultTryPauseMillis:    250,
		LocalWorkers:             4,
		LocalBacklog:             64,
		Loglevel:                 rlog.LOGLEVEL_WARNINGS,
	}
}

// SetDefaultCallTimeout sets the per-attempt network budget used whenever
// an invocation doesn't supply its own.
func (c *NodeConfig) SetDefaultCallTimeout(d time.Duration) {
	c.DefaultCallTimeoutMillis = clock.Millis(d)
}

// SetRetryPolicy sets how many dispatch attempts an invocation gets and
// how long it waits between them by default.
func (c *NodeConfig) SetRetryPolicy(tryCount int, pause time.Duration) {
	c.DefaultTryCount = tryCount
	c.DefaultTryPauseMillis = clock.Millis(pause)
}

// SetLocalDispatch sizes the local worker pool and its backlog.
func (c *NodeConfig) SetLocalDispatch(workers, backlog int) {
	c.LocalWorkers = workers
	c.LocalBacklog = backlog
}

// SetKeyFiles points this node at an on-disk CURVE keypair, switching it
// into secured mode once the keys are loaded.
func (c *NodeConfig) SetKeyFiles(publicFile, privateFile string) {
	c.PublicKeyFile = publicFile
	c.PrivateKeyFile = privateFile
}

// SetLoglevel sets the global log verbosity this node runs at.
func (c *NodeConfig) SetLoglevel(l rlog.Level) {
	c.Loglevel = l
}
