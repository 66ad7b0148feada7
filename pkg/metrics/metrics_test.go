package metrics

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/open-teleop/handpose/pkg/handpose"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestReason(t *testing.T) {
	testCases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: short", handpose.ErrMalformedRecord), ReasonMalformed},
		{fmt.Errorf("%w: 10 of 24", handpose.ErrIncompleteRecord), ReasonIncomplete},
		{fmt.Errorf("%w: reset", handpose.ErrStreamReadFailed), ReasonReadFailed},
		{fmt.Errorf("%w: pipe", handpose.ErrStreamWriteFailed), ReasonWriteFailed},
		{errors.New("boom"), ReasonOther},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Reason(tc.err), tc.err.Error())
	}
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()

	c.RecordReceived("handpose.hand", handpose.Record{X: 1})
	c.RecordReceived("handpose.hand", handpose.Record{X: float32(math.NaN())})
	c.RecordError("tcp", handpose.ErrIncompleteRecord)
	c.StreamOpened("tcp")
	c.StreamOpened("tcp")
	c.StreamClosed("tcp")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.recordsReceived.WithLabelValues("handpose.hand")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.nonFinite.WithLabelValues("handpose.hand")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recordErrors.WithLabelValues("tcp", ReasonIncomplete)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeStreams.WithLabelValues("tcp")))

	families, err := c.Gatherer().Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
