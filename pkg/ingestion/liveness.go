package ingestion

import "sync/atomic"

// Flag is a Liveness toggled by the process supervisor.
type Flag struct {
	v atomic.Bool
}

func NewFlag(alive bool) *Flag {
	f := &Flag{}
	f.v.Store(alive)
	return f
}

func (f *Flag) Alive() bool { return f.v.Load() }
func (f *Flag) Set(alive bool) { f.v.Store(alive) }
