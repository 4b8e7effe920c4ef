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

package database

import (
	"sync"
	"testing"
	"time"

	_ "github.com/hyperair/confd/internal/backend/memory"
	"github.com/hyperair/confd/internal/listenertree"
	"github.com/hyperair/confd/internal/source"
	"github.com/hyperair/confd/internal/value"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	st, err := source.NewStack([]string{"mem:readwrite:" + t.Name()})
	require.NoError(t, err)
	return New("default", st)
}

// TestSetDoesNotHoldMuDuringNotify pins down the fix for the lock-ordering
// inversion between a Database's mutex and whatever lock a listener
// callback takes: a callback that itself blocks on a second lock must not
// be able to wedge a concurrent caller of Query/LastAccess on this
// Database, since those only ever need mu, which Set releases before
// firing notifications.
func TestSetDoesNotHoldMuDuringNotify(t *testing.T) {
	db := newTestDatabase(t)

	blockCallback := make(chan struct{})
	callbackEntered := make(chan struct{})
	db.AddListener("/a", func(int64, string, listenertree.Event) {
		close(callbackEntered)
		<-blockCallback
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, db.Set("/a/x", value.NewInt(1)))
	}()

	select {
	case <-callbackEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("listener callback never ran")
	}

	// The callback is still blocked inside Notify; Query and LastAccess
	// must still complete promptly since they only need mu.
	lookupDone := make(chan struct{})
	go func() {
		defer close(lookupDone)
		_, err := db.Query("/other", nil)
		require.NoError(t, err)
		_ = db.LastAccess()
	}()

	select {
	case <-lookupDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Query/LastAccess blocked behind an in-flight notification callback")
	}

	close(blockCallback)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Set never returned after callback unblocked")
	}
}

// TestConcurrentSetsDoNotDeadlock exercises many goroutines hammering Set
// concurrently with a listener registered, as a regression check for the
// ABBA lock ordering between Database.mu and Database.notifyMu.
func TestConcurrentSetsDoNotDeadlock(t *testing.T) {
	db := newTestDatabase(t)

	var notified sync.WaitGroup
	const n = 50
	notified.Add(n)
	db.AddListener("/c", func(int64, string, listenertree.Event) { notified.Done() })

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, db.Set("/c/k", value.NewInt(int32(i))))
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		notified.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent Set calls deadlocked")
	}
}
