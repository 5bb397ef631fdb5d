package connector

import (
	"fmt"
	protocol "github.com/influxdata/line-protocol"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	measurementEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`, " ", `\ `)
	tagEscaper         = strings.NewReplacer(`\`, `\\`, ",", `\,`, "=", `\=`)
	stringEscaper      = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r\n", "#", "\n", "#", "\r", "#")
)

// FormatLine renders one line protocol line for a single value:
//
//	measurement,tags value=<value> <timestamp in milliseconds>\n
//
// Dots in name and tags are replaced by underscores and spaces are removed from tags.
// String values are quoted, anything else is written in its natural text form. The returned
// bool is false when value is nil or name is empty, in which case nothing must be written.
func FormatLine(name, tags string, value interface{}, ts time.Time) (string, bool) {
	return lineFormatter{tags: tags}.format(NewSample(name, "", value), ts)
}

type lineFormatter struct {
	namePrefix string
	tags       string
}

// format renders m, stamped with now when m carries no time.
func (f lineFormatter) format(m protocol.Metric, now time.Time) (string, bool) {
	measurement := strings.ReplaceAll(f.namePrefix+m.Name(), ".", "_")
	if measurement == "" {
		return "", false
	}
	value, ok := fieldValue(m)
	if !ok {
		return "", false
	}
	valueStr, ok := formatValue(value)
	if !ok {
		return "", false
	}

	var sb strings.Builder
	sb.WriteString(measurementEscaper.Replace(measurement))
	if tags := sanitizeTags(f.tags); tags != "" {
		sb.WriteByte(',')
		sb.WriteString(tags)
	}
	for _, tag := range m.TagList() {
		if tag == nil {
			continue
		}
		k, v := sanitizeTags(tag.Key), sanitizeTags(tag.Value)
		if k == "" || v == "" {
			continue
		}
		sb.WriteByte(',')
		sb.WriteString(tagEscaper.Replace(k))
		sb.WriteByte('=')
		sb.WriteString(tagEscaper.Replace(v))
	}
	sb.WriteByte(' ')
	sb.WriteString(ValueField)
	sb.WriteByte('=')
	sb.WriteString(valueStr)
	sb.WriteByte(' ')
	ts := m.Time()
	if ts.IsZero() {
		ts = now
	}
	sb.WriteString(strconv.FormatInt(ts.UnixMilli(), 10))
	sb.WriteByte('\n')
	return sb.String(), true
}

func sanitizeTags(tags string) string {
	tags = strings.ReplaceAll(tags, ".", "_")
	tags = strings.ReplaceAll(tags, " ", "")
	return strings.Trim(tags, ",")
}

func formatValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return quote(v), true
	case []byte:
		return quote(string(v)), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return "", false
		}
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "", false
		}
		return formatValue(rv.Elem().Interface())
	}
	return fmt.Sprint(value), true
}

func quote(s string) string {
	return `"` + stringEscaper.Replace(s) + `"`
}
