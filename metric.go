package connector

import (
	protocol "github.com/influxdata/line-protocol"
	"time"
)

// ValueField is the single field key written on every line.
const ValueField = "value"

// Sample is one measurement handed to the connector. It implements protocol.Metric with a
// single field named "value".
type Sample struct {
	name       string
	metricType string
	value      interface{}
	tags       []*protocol.Tag
	timestamp  time.Time
}

func NewSample(name string, metricType string, value interface{}) *Sample {
	return &Sample{name: name, metricType: metricType, value: value}
}

func (m *Sample) SetTime(t time.Time) {
	m.timestamp = t
}

// Time is zero until SetTime is called. The connector stamps such samples with the time of
// its clock.
func (m *Sample) Time() time.Time {
	return m.timestamp
}

func (m *Sample) Name() string {
	return m.name
}

// Type is the optional type reported by the collector. It is not written to the line.
func (m *Sample) Type() string {
	return m.metricType
}

func (m *Sample) Value() interface{} {
	return m.value
}

func (m *Sample) TagList() []*protocol.Tag {
	return m.tags
}

func (m *Sample) FieldList() []*protocol.Field {
	return []*protocol.Field{{Key: ValueField, Value: m.value}}
}

// AddTag adds a tag that is written after the tags of the connector settings.
func (m *Sample) AddTag(key, value string) {
	m.tags = append(m.tags, &protocol.Tag{
		Key:   key,
		Value: value,
	})
}

// fieldValue returns the value of the "value" field of m, if any.
func fieldValue(m protocol.Metric) (interface{}, bool) {
	for _, f := range m.FieldList() {
		if f != nil && f.Key == ValueField {
			return f.Value, true
		}
	}
	return nil, false
}
