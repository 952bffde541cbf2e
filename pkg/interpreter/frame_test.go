package interpreter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/multical401/pkg/types"
)

var sampleFields = []string{
	"0001234", "0005678", "0000100", "0002000", "0002500",
	"0000500", "0000100", "0000050", "0000060", "0000000",
}

func frame(fields ...string) []byte {
	return []byte(strings.Join(fields, " ") + "\r\n")
}

func TestParseFrameScaling(t *testing.T) {
	reading, err := ParseFrame(frame(sampleFields...))
	require.NoError(t, err)

	assert.Equal(t, types.Reading{
		EnergyGJ:           1.234,
		GasEquivalentM3:    40.327,
		VolumeM3:           56.78,
		OperatingHours:     100,
		TemperatureSupplyC: 20,
		TemperatureReturnC: 25,
		TemperatureDeltaC:  5,
		PowerKW:            10,
		FlowLPH:            50,
		PeakFlowLPH:        60,
		InfoCode:           0,
	}, reading)
}

func TestParseFrameAcceptsAnyWhitespace(t *testing.T) {
	raw := []byte("\n" + strings.Join(sampleFields, "\t ") + "\r\n\x00")
	// NUL is not whitespace, so it shows up as an eleventh field.
	_, err := ParseFrame(raw)
	assert.ErrorIs(t, err, ErrFrameShape)

	raw = []byte("\n" + strings.Join(sampleFields, "\t  ") + "\r\n")
	reading, err := ParseFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, 1.234, reading.EnergyGJ)
}

func TestParseFrameRejectsWrongFieldCount(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"nine fields", frame(sampleFields[:9]...)},
		{"eleven fields", frame(append(append([]string{}, sampleFields...), "0000001")...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFrameShape)

			var shapeErr *FrameShapeError
			require.ErrorAs(t, err, &shapeErr)
			assert.Equal(t, tt.raw, shapeErr.Raw)
		})
	}
}

func TestParseFrameRejectsWrongFieldWidth(t *testing.T) {
	for _, bad := range []string{"000123", "00001234"} {
		t.Run(bad, func(t *testing.T) {
			fields := append([]string{}, sampleFields...)
			fields[4] = bad

			_, err := ParseFrame(frame(fields...))
			assert.ErrorIs(t, err, ErrFrameShape)
		})
	}
}

func TestParseFrameRejectsNonNumericField(t *testing.T) {
	fields := append([]string{}, sampleFields...)
	fields[6] = "00x0100"

	_, err := ParseFrame(frame(fields...))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
	assert.NotErrorIs(t, err, ErrFrameShape)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 6, parseErr.Position)
	assert.Equal(t, "00x0100", parseErr.Field)
}

func TestDecodeFrameRequiresTenFields(t *testing.T) {
	_, err := DecodeFrame([][]byte{[]byte("0000001")})
	assert.ErrorIs(t, err, ErrFrameShape)
}
