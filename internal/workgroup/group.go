// Copyright confd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workgroup controls the lifetime of the daemon's set of
// long-running goroutines (RPC listener, idle sweep timer, signal
// handler): whichever exits first triggers a coordinated shutdown of the
// rest, and its error is what Run reports to main.
package workgroup

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type member struct {
	name string
	fn   func(<-chan struct{}) error
}

// Group manages a set of named goroutines with a shared lifetime. The
// zero value is ready to use.
type Group struct {
	log  logrus.FieldLogger
	fns  []member
}

// New builds a Group that logs each member's exit via log. A nil log
// disables logging.
func New(log logrus.FieldLogger) *Group {
	return &Group{log: log}
}

// Add registers fn under name. fn must return promptly once its stop
// channel is closed. Add must be called before Run.
func (g *Group) Add(name string, fn func(<-chan struct{}) error) {
	g.fns = append(g.fns, member{name: name, fn: fn})
}

// AddContext registers fn under name, wrapping it in a context.Context
// that is canceled when the group shuts down, for members built around
// context-aware blocking calls (e.g. http.Server.Shutdown).
func (g *Group) AddContext(name string, fn func(context.Context)) {
	g.Add(name, func(stop <-chan struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			fn(ctx)
		}()
		<-stop
		cancel()
		<-done
		return nil
	})
}

// Run starts every registered member in its own goroutine and blocks
// until all have exited. The first member to return closes the stop
// channel shared by the rest, and Run reports that member's error to the
// caller once every goroutine has unwound.
func (g *Group) Run() error {
	if len(g.fns) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(len(g.fns))

	stop := make(chan struct{})
	type outcome struct {
		name string
		err  error
	}
	results := make(chan outcome, len(g.fns))
	for _, m := range g.fns {
		go func(m member) {
			defer wg.Done()
			err := m.fn(stop)
			if g.log != nil {
				entry := g.log.WithField("member", m.name)
				if err != nil {
					entry.WithError(err).Warn("workgroup member exited")
				} else {
					entry.Debug("workgroup member exited")
				}
			}
			results <- outcome{name: m.name, err: err}
		}(m)
	}

	first := <-results
	close(stop)
	wg.Wait()
	return first.err
}
