// Package refresh delivers periodic "data may be stale" signals to views. A
// view picks one Strategy at startup: push when the realtime connection is
// available, polling otherwise. Callers see the same Signal either way.
package refresh

import (
	"context"
	"fmt"
)

// Mode names how a Strategy learns about changes.
type Mode int

const (
	ModePush Mode = iota
	ModePoll
)

func (m Mode) String() string {
	switch m {
	case ModePush:
		return "push"
	case ModePoll:
		return "poll"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// SignalFunc is called whenever the caller should refetch. reason is the
// triggering event name for push strategies and "poll" for polling.
type SignalFunc func(ctx context.Context, reason string)

// Strategy delivers refresh signals until stopped.
type Strategy interface {
	Start(ctx context.Context) error
	Stop() error
	Mode() Mode
}

// Select returns push when realtime is available and poll otherwise. The
// choice is made once; strategies never switch behind the caller's back.
func Select(realtimeAvailable bool, push, poll Strategy) Strategy {
	if realtimeAvailable && push != nil {
		return push
	}
	return poll
}
