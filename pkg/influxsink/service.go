package influxsink

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/multical401/pkg/types"
)

const Measurement = "multical401"

// Writer sends accepted readings to InfluxDB without blocking the caller.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

func New(url, token, org, bucket string, logger *logrus.Logger) *Writer {
	client := influxdb2.NewClient(url, token)
	writeAPI := client.WriteAPI(org, bucket)

	go func() {
		for err := range writeAPI.Errors() {
			logger.WithField("bucket", bucket).Warnf("InfluxDB write failed: %v", err)
		}
	}()

	return &Writer{client: client, writeAPI: writeAPI}
}

func (w *Writer) Write(meter string, reading types.Reading) {
	w.writeAPI.WritePoint(NewPoint(meter, reading))
}

// Close flushes pending points.
func (w *Writer) Close() {
	w.writeAPI.Flush()
	w.client.Close()
}

// NewPoint has one field per sensor key.
func NewPoint(meter string, reading types.Reading) *write.Point {
	p := influxdb2.NewPointWithMeasurement(Measurement).
		AddTag("meter", meter).
		SetTime(reading.Timestamp)

	for _, key := range types.SensorKeys {
		d := types.SensorTypes[key]
		if v, ok := reading.Value(d.Position); ok {
			p.AddField(key, v)
		}
	}
	return p
}
