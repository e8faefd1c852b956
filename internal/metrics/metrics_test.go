// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSessionStart(t *testing.T) {
	before := testutil.ToFloat64(SessionsStarted.WithLabelValues("romantic"))
	RecordSessionStart("romantic", 28, 1200*time.Millisecond)
	after := testutil.ToFloat64(SessionsStarted.WithLabelValues("romantic"))
	assert.Equal(t, before+1, after)
}

func TestRecordRerankOutcomes(t *testing.T) {
	before := testutil.ToFloat64(RerankOutcomes.WithLabelValues("applied"))
	RecordRerank("applied", 3*time.Second)
	RecordRerank("failed", time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(RerankOutcomes.WithLabelValues("applied")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(RerankOutcomes.WithLabelValues("failed")), 1.0)
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(HTTPActiveRequests)
	TrackActiveRequest(true)
	assert.Equal(t, base+1, testutil.ToFloat64(HTTPActiveRequests))
	TrackActiveRequest(false)
	assert.Equal(t, base, testutil.ToFloat64(HTTPActiveRequests))
}

func TestFeedbackCounter(t *testing.T) {
	before := testutil.ToFloat64(FeedbackEvents.WithLabelValues("explicit_like"))
	FeedbackEvents.WithLabelValues("explicit_like").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(FeedbackEvents.WithLabelValues("explicit_like")))
}
