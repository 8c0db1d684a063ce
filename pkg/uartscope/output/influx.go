package output

import (
	"github.com/denisbrodbeck/machineid"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"

	"github.com/norasector/uartscope/pkg/frame"
)

const MeasurementSample = "uartscope.sample"

// HostID returns an application-specific machine identifier for tagging points.
func HostID() string {
	id, err := machineid.ProtectedID("uartscope")
	if err != nil {
		return "unknown"
	}
	return id[:12]
}

// Influx writes one point per sample.
type Influx struct {
	writeAPI api.WriteAPI
	tags     map[string]string
}

// NewInflux creates an Influx sink tagging points with the layout name and host.
func NewInflux(writeAPI api.WriteAPI, layout, host string) *Influx {
	return &Influx{
		writeAPI: writeAPI,
		tags: map[string]string{
			"layout": layout,
			"host":   host,
		},
	}
}

func (i *Influx) Write(rec frame.SampleRecord) error {
	fields := make(map[string]interface{}, len(rec.Fields)+2)
	fields["index"] = rec.Index
	fields["elapsed_s"] = rec.ElapsedSeconds()
	for _, f := range rec.Fields {
		fields[f.Name] = f.Value
	}
	i.writeAPI.WritePoint(influxdb2.NewPoint(MeasurementSample, i.tags, fields, rec.Time))
	return nil
}

func (i *Influx) Flush() error {
	i.writeAPI.Flush()
	return nil
}
