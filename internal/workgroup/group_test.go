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

package workgroup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunReturnsFirstExitError(t *testing.T) {
	g := New(nil)
	boom := errors.New("boom")
	g.Add("fast", func(<-chan struct{}) error { return boom })
	g.Add("slow", func(stop <-chan struct{}) error {
		<-stop
		return nil
	})
	assert.Equal(t, boom, g.Run())
}

func TestRunWithNoMembersReturnsNil(t *testing.T) {
	g := New(nil)
	assert.NoError(t, g.Run())
}

func TestAddContextCancelsOnStop(t *testing.T) {
	g := New(nil)
	canceled := make(chan struct{})
	g.AddContext("ctx-member", func(ctx context.Context) {
		<-ctx.Done()
		close(canceled)
	})
	g.Add("trigger", func(<-chan struct{}) error { return nil })

	done := make(chan struct{})
	go func() {
		g.Run()
		close(done)
	}()

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("context was not canceled on group shutdown")
	}
	<-done
}
