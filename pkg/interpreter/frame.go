package interpreter

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/NotCoffee418/multical401/pkg/meterutils"
	"github.com/NotCoffee418/multical401/pkg/types"
)

const (
	FieldCount = 10
	FieldWidth = 7
)

var (
	ErrFrameShape = errors.New("invalid frame shape")
	ErrParse      = errors.New("invalid frame content")
)

// FrameShapeError means the reply did not have 10 fields of 7 bytes.
type FrameShapeError struct {
	Reason string
	Fields int
	Raw    []byte
}

func (e *FrameShapeError) Error() string {
	return fmt.Sprintf("%s (%d fields): %q", e.Reason, e.Fields, e.Raw)
}

func (e *FrameShapeError) Is(target error) bool { return target == ErrFrameShape }

// ParseError means a field was not a decimal number.
type ParseError struct {
	Position int
	Field    string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("field %d %q: %v", e.Position, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// SplitFrame splits the raw reply on whitespace and checks its shape.
func SplitFrame(raw []byte) ([][]byte, error) {
	fields := bytes.Fields(raw)
	if len(fields) != FieldCount {
		return nil, &FrameShapeError{
			Reason: fmt.Sprintf("expected %d fields", FieldCount),
			Fields: len(fields),
			Raw:    raw,
		}
	}

	for i, f := range fields {
		if len(f) != FieldWidth {
			return nil, &FrameShapeError{
				Reason: fmt.Sprintf("field %d is %d bytes, expected %d", i, len(f), FieldWidth),
				Fields: len(fields),
				Raw:    raw,
			}
		}
	}
	return fields, nil
}

// DecodeFrame turns validated fields into a Reading.
// Nothing is returned unless every field decodes.
func DecodeFrame(fields [][]byte) (types.Reading, error) {
	if len(fields) != FieldCount {
		return types.Reading{}, &FrameShapeError{
			Reason: fmt.Sprintf("expected %d fields", FieldCount),
			Fields: len(fields),
		}
	}

	var values [FieldCount]int64
	for i, f := range fields {
		v, err := strconv.ParseInt(string(f), 10, 64)
		if err != nil {
			return types.Reading{}, &ParseError{Position: i, Field: string(f), Err: err}
		}
		values[i] = v
	}

	energy := float64(values[0]) / 1000
	return types.Reading{
		EnergyGJ:           energy,
		GasEquivalentM3:    meterutils.GasEquivalentM3(energy),
		VolumeM3:           float64(values[1]) / 100,
		OperatingHours:     values[2],
		TemperatureSupplyC: float64(values[3]) / 100,
		TemperatureReturnC: float64(values[4]) / 100,
		TemperatureDeltaC:  float64(values[5]) / 100,
		PowerKW:            float64(values[6]) / 10,
		FlowLPH:            values[7],
		PeakFlowLPH:        values[8],
		InfoCode:           values[9],
	}, nil
}

func ParseFrame(raw []byte) (types.Reading, error) {
	fields, err := SplitFrame(raw)
	if err != nil {
		return types.Reading{}, err
	}
	return DecodeFrame(fields)
}
