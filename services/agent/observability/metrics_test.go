// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRun(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRun("get_data", true)
	m.RecordRun("get_data", true)
	m.RecordRun("get_data", false)

	success := testutil.ToFloat64(m.RunsTotal.WithLabelValues("get_data", "success"))
	if success != 2 {
		t.Errorf("success runs = %v, want 2", success)
	}
	failed := testutil.ToFloat64(m.RunsTotal.WithLabelValues("get_data", "error"))
	if failed != 1 {
		t.Errorf("error runs = %v, want 1", failed)
	}
}

func TestRecordUpstream(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordUpstream("taxon", 200, 120*time.Millisecond)
	m.RecordUpstream("traits", 404, 80*time.Millisecond)
	m.RecordUpstream("traits", 0, time.Second)

	if got := testutil.ToFloat64(m.UpstreamRequestsTotal.WithLabelValues("taxon", "200")); got != 1 {
		t.Errorf("taxon 200 count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.UpstreamRequestsTotal.WithLabelValues("traits", "404")); got != 1 {
		t.Errorf("traits 404 count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.UpstreamRequestsTotal.WithLabelValues("traits", "0")); got != 1 {
		t.Errorf("traits transport-error count = %v, want 1", got)
	}
}

func TestCacheCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	if got := testutil.ToFloat64(m.CacheTotal.WithLabelValues("hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheTotal.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
}

func TestActiveStreams(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.StreamStarted()
	m.StreamStarted()
	m.StreamEnded()

	if got := testutil.ToFloat64(m.ActiveStreams); got != 1 {
		t.Errorf("active streams = %v, want 1", got)
	}
}
