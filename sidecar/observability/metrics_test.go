package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordActionDone(t *testing.T) {
	RecordActionSubmitted()
	RecordActionDone("execute_request", "done", 0.05)

	count := testutil.ToFloat64(actionsTotal.WithLabelValues("execute_request", "done"))
	assert.Greater(t, count, 0.0)
}

func TestRecordSafetyNetTriggered(t *testing.T) {
	RecordSafetyNetTriggered("execute_request")
	count := testutil.ToFloat64(safetyNetTriggeredTotal.WithLabelValues("execute_request"))
	assert.Greater(t, count, 0.0)
}

func TestRecordHandlerException(t *testing.T) {
	RecordHandlerException("status")
	count := testutil.ToFloat64(handlerExceptionsTotal.WithLabelValues("status"))
	assert.Greater(t, count, 0.0)
}

func TestRecordChannelDisconnect(t *testing.T) {
	RecordChannelDisconnect("shell")
	count := testutil.ToFloat64(channelDisconnectsTotal.WithLabelValues("shell"))
	assert.Greater(t, count, 0.0)
}
