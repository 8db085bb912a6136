// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/loov/hrtime"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-backup/cumulus/pkg/objref"
)

// BenchmarkGetColdExtraction measures a first-touch Get, which pays the
// full segment-extraction cost, against a warm Get served entirely from
// the on-disk cache. hrtime reports high-resolution wall-clock duration
// independent of testing.B's own loop overhead.
func BenchmarkGetColdExtraction(b *testing.B) {
	t := &testing.T{}
	objects := map[string]string{"aa": strings.Repeat("x", 4096)}

	for i := 0; i < b.N; i++ {
		s, _ := newTestStore(t, objects)
		ref, err := objref.Parse(testSegment + "/aa")
		require.NoError(t, err)

		start := hrtime.Now()
		_, err = s.Get(context.Background(), ref)
		elapsed := hrtime.Since(start)
		require.NoError(t, err)

		b.ReportMetric(elapsed.Seconds()*1e9, "ns/cold-extract")
	}
}

func BenchmarkGetWarmCache(b *testing.B) {
	t := &testing.T{}
	s, _ := newTestStore(t, map[string]string{"aa": strings.Repeat("x", 4096)})
	ref, err := objref.Parse(testSegment + "/aa")
	require.NoError(t, err)

	_, err = s.Get(context.Background(), ref)
	require.NoError(t, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		start := hrtime.Now()
		_, err := s.Get(context.Background(), ref)
		elapsed := hrtime.Since(start)
		require.NoError(t, err)
		b.ReportMetric(elapsed.Seconds()*1e9, "ns/warm-get")
	}
}
