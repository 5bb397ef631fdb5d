/*

Package connector provides a metric writer that sends Influx line protocol metrics to the HTTP
write endpoint of an InfluxDB server. It is meant to be driven by an external collector that
polls attribute values: the collector calls Configure once, Submit for every sampled value and
EndOfCycle after every polling pass.

Accepted lines are streamed over a single outbound HTTP request that stays open for the whole
batch. The batch is flushed, and the request completed, once EndOfCycle observes that either
5000 lines were written or five minutes passed since the previous flush. Both limits can be
changed with the batch.size and batch.timeout settings.

Exception notifications emitted by a management Runtime are forwarded through the same write
path. Identifiers listed by the exceptionName setting are subscribed as soon as the runtime
reports them registered, which is checked on every EndOfCycle.

Example

The following configures a connector for an InfluxDB listening on influxdb:8086 and writes a
single value, which is sent when the connector is closed:

	c, err := connector.NewConnector(context.Background(), connector.Config{})

	settings, err := connector.DecodeSettings(map[string]interface{}{
		"host":     "influxdb",
		"database": "jmx",
		"tags":     "host=app1",
	})
	err = c.Configure(settings)

	err = c.Submit("cpu.load", "", 0.42)
	err = c.Close()

*/
package connector
