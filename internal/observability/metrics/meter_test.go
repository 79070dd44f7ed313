package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct{ dropped, failed int64 }

func (f fakeStats) Dropped() int64 { return f.dropped }
func (f fakeStats) Failed() int64  { return f.failed }

func TestMeter_Disabled(t *testing.T) {
	m := New(context.Background(), Config{}, "staffgate")
	require.NotNil(t, m.GetMeter())

	counter, err := m.CreateCounter("staffgate_test_total", "test")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	reg, err := m.ObserveAudit(fakeStats{dropped: 3})
	require.NoError(t, err)
	assert.NoError(t, reg.Unregister())
}
