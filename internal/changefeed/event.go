// Package changefeed carries "state may be stale" notifications from every
// persistence path to the action log store.
package changefeed

import "time"

// Source says where a change originated.
type Source string

const (
	// SourceLocal is a commit made through a repository in this process.
	SourceLocal Source = "local"
	// SourceCrossContext is a commit made by another connection or process
	// against the same database file.
	SourceCrossContext Source = "cross_context"
	// SourceRemote is a change that arrived from the remote backend.
	SourceRemote Source = "remote"
)

// Event is one change notification.
type Event struct {
	Source      Source
	ContainerID string
	ContextID   string
	Entity      string
	At          time.Time
}

// Identity names a persistence context. ContainerID identifies the
// underlying database, ContextID one handle onto it.
type Identity struct {
	ContainerID string
	ContextID   string
}

// Publisher accepts change events.
type Publisher interface {
	Publish(Event)
}

// Decision is what an observer should do with an event.
type Decision int

const (
	Ignore Decision = iota
	Reload
)

func (d Decision) String() string {
	if d == Reload {
		return "reload"
	}
	return "ignore"
}

// Classify decides whether an event makes the observer's cache stale.
//
// Remote events always reload. Events for another container are ignored.
// Events from the observer's own context are ignored while it is writing,
// since those are its own commits. Anything else in the same container
// reloads.
func Classify(e Event, self Identity, mutating bool) Decision {
	if e.Source == SourceRemote {
		return Reload
	}
	if e.ContainerID != self.ContainerID {
		return Ignore
	}
	if e.ContextID == self.ContextID && e.Source == SourceLocal && mutating {
		return Ignore
	}
	return Reload
}
