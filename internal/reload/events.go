// Package reload pushes change notifications from tasks to connected
// browsers.
package reload

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"
)

// Kind is the type of a reload event.
type Kind string

const (
	// KindReload asks clients to reload the page.
	KindReload Kind = "reload"
	// KindInject asks clients to swap a stylesheet in place.
	KindInject Kind = "inject"
	// KindNotify reports task errors. An empty Message clears the errors
	// previously reported for Task.
	KindNotify Kind = "notify"
)

// Event is one notification published by a task.
type Event struct {
	Kind    Kind      `json:"type"`
	Task    string    `json:"task,omitempty"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// ChangeEvent describes a written output file. Stylesheets are injected,
// everything else reloads the page.
func ChangeEvent(task, file string) Event {
	kind := KindReload
	if strings.EqualFold(path.Ext(file), ".css") {
		kind = KindInject
	}
	return Event{Kind: kind, Task: task, Path: file, Time: time.Now()}
}

// NotifyEvent reports a failure of task on file.
func NotifyEvent(task, file, message string) Event {
	return Event{Kind: KindNotify, Task: task, Path: file, Message: message, Time: time.Now()}
}

// ResolvedEvent clears the errors reported for task.
func ResolvedEvent(task string) Event {
	return Event{Kind: KindNotify, Task: task, Time: time.Now()}
}

// Publisher receives task events.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

// Recorder is a Publisher that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records ev.
func (r *Recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events, in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Relay forwards events to a Publisher attached later. Tasks are built
// before the broadcaster exists; events published while nothing is attached
// are dropped.
type Relay struct {
	mu     sync.RWMutex
	target Publisher
}

// Attach sets the publisher events are forwarded to. nil detaches.
func (r *Relay) Attach(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = p
}

// Publish forwards ev to the attached publisher.
func (r *Relay) Publish(ctx context.Context, ev Event) {
	r.mu.RLock()
	target := r.target
	r.mu.RUnlock()
	if target != nil {
		target.Publish(ctx, ev)
	}
}
