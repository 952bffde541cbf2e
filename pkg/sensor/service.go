package sensor

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/multical401/pkg/types"
)

const Domain = "mc401"

// ReadingSource is anything holding the current Reading of a meter.
type ReadingSource interface {
	Current() (types.Reading, bool)
}

// Entity is one exposed value of a meter, as published to dashboards.
type Entity struct {
	types.SensorDescriptor
	Name     string `json:"name"`
	UniqueID string `json:"unique_id"`
	Meter    string `json:"meter"`

	source ReadingSource
}

// Value of the entity in the current Reading, false before the first accepted poll.
func (e *Entity) Value() (float64, bool) {
	reading, ok := e.source.Current()
	if !ok {
		return 0, false
	}
	return reading.Value(e.Position)
}

func UniqueID(meterName, key string) string {
	id := fmt.Sprintf("%s_%s_%s", Domain, meterName, key)
	return strings.ReplaceAll(strings.ToLower(id), " ", "_")
}

// NewEntities builds one entity per configured resource.
// Unknown and repeated keys are skipped with a warning.
func NewEntities(meterName string, source ReadingSource, resources []string, logger *logrus.Logger) []*Entity {
	entities := make([]*Entity, 0, len(resources))
	seen := map[string]bool{}
	for _, resource := range resources {
		d, ok := types.LookupSensor(resource)
		if !ok {
			logger.WithField("meter", meterName).Warnf("Ignoring unknown sensor type %q", resource)
			continue
		}
		if seen[d.Key] {
			logger.WithField("meter", meterName).Warnf("Ignoring repeated sensor type %q", resource)
			continue
		}
		seen[d.Key] = true

		entities = append(entities, &Entity{
			SensorDescriptor: d,
			Name:             fmt.Sprintf("%s %s", meterName, d.Label),
			UniqueID:         UniqueID(meterName, d.Key),
			Meter:            meterName,
			source:           source,
		})
	}
	return entities
}

// State is a JSON friendly snapshot of an entity.
type State struct {
	*Entity
	Value *float64 `json:"value"`
}

func (e *Entity) State() State {
	s := State{Entity: e}
	if v, ok := e.Value(); ok {
		s.Value = &v
	}
	return s
}
