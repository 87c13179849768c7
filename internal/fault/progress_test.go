package fault_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/petroflow/internal/events"
	"github.com/seantiz/petroflow/internal/fault"
)

func TestProgressLifecycle(t *testing.T) {
	h, rec := newHandler(t, nil)

	h.ShowProgress("wf-calc", fault.Indicator{WorkflowID: "wf", Title: "Calculating", Cancelable: true})
	require.Len(t, h.ActiveProgress(), 1)

	assert.True(t, h.UpdateProgress("wf-calc", 150, "almost"))
	active := h.ActiveProgress()
	assert.Equal(t, 100.0, active[0].Percent, "percent is clamped")
	assert.Equal(t, "almost", active[0].Message)

	assert.True(t, h.HideProgress("wf-calc"))
	assert.Empty(t, h.ActiveProgress())
	assert.False(t, h.HideProgress("wf-calc"))
	assert.False(t, h.UpdateProgress("wf-calc", 10, ""))

	assert.Equal(t, []events.Kind{
		events.KindProgressStart, events.KindProgressUpdate, events.KindProgressEnd,
	}, rec.kinds())
	assert.Equal(t, "wf", rec.last().WorkflowID)
}
