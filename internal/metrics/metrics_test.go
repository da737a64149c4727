// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	Register(prometheus.NewRegistry())

	before := testutil.ToFloat64(regionsDispatched.WithLabelValues("true"))
	RecordRegionDispatched(true)
	RecordRegionDispatched(true)
	RecordRegionDispatched(false)
	if got, want := testutil.ToFloat64(regionsDispatched.WithLabelValues("true"))-before, 2.0; got != want {
		t.Errorf("Wrong active region count: got %v, want %v", got, want)
	}

	discarded := testutil.ToFloat64(readsDiscarded)
	RecordReadsDiscarded(5)
	if got, want := testutil.ToFloat64(readsDiscarded)-discarded, 5.0; got != want {
		t.Errorf("Wrong discarded count: got %v, want %v", got, want)
	}

	SetPending(12, 3)
	if got, want := testutil.ToFloat64(pendingReads), 12.0; got != want {
		t.Errorf("Wrong pending reads: got %v, want %v", got, want)
	}
	if got, want := testutil.ToFloat64(queuedRegions), 3.0; got != want {
		t.Errorf("Wrong queued regions: got %v, want %v", got, want)
	}

	failures := testutil.ToFloat64(traversals.WithLabelValues("error"))
	RecordTraversal(errors.New("boom"))
	if got, want := testutil.ToFloat64(traversals.WithLabelValues("error"))-failures, 1.0; got != want {
		t.Errorf("Wrong failed traversal count: got %v, want %v", got, want)
	}
}

func TestCollectorsRegister(t *testing.T) {
	registry := prometheus.NewRegistry()
	for _, c := range Collectors() {
		if err := registry.Register(c); err != nil {
			t.Errorf("Failed to register collector: %v", err)
		}
	}
}
