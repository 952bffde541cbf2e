package influxsink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/multical401/pkg/types"
)

func TestNewPoint(t *testing.T) {
	ts := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	p := NewPoint("Multical 401", types.Reading{Timestamp: ts, EnergyGJ: 1.234, FlowLPH: 50})

	assert.Equal(t, Measurement, p.Name())
	assert.Equal(t, ts, p.Time())

	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "meter", p.TagList()[0].Key)
	assert.Equal(t, "Multical 401", p.TagList()[0].Value)

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Len(t, fields, types.PositionCount)
	assert.Equal(t, 1.234, fields["energy"])
	assert.Equal(t, 50.0, fields["flow"])
}
