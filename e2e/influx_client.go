// Package e2e runs the doser service against real brokers and databases
// started with testcontainers-go.
package e2e

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// InfluxInstance describes a disposable InfluxDB 2 server.
type InfluxInstance struct {
	URL    string
	Org    string
	Bucket string
	Token  string
}

// StartInflux launches InfluxDB 2.7 in setup mode so the org, bucket and
// admin token exist once the health check passes.
func StartInflux(ctx context.Context) (InfluxInstance, func(), error) {
	inst := InfluxInstance{Org: "doser", Bucket: "doses", Token: "e2e-token"}
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "doser",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "doser-e2e-password",
			"DOCKER_INFLUXDB_INIT_ORG":         inst.Org,
			"DOCKER_INFLUXDB_INIT_BUCKET":      inst.Bucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": inst.Token,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		return inst, nil, err
	}
	cleanup := func() { _ = cont.Terminate(context.Background()) }
	host, err := cont.Host(ctx)
	if err != nil {
		cleanup()
		return inst, nil, err
	}
	port, err := cont.MappedPort(ctx, "8086")
	if err != nil {
		cleanup()
		return inst, nil, err
	}
	inst.URL = fmt.Sprintf("http://%s:%s", host, port.Port())
	return inst, cleanup, nil
}

// InfluxClient queries the points written by the service.
type InfluxClient struct {
	bucket string
	client influxdb2.Client
	query  api.QueryAPI
}

func NewInfluxClient(inst InfluxInstance) *InfluxClient {
	c := influxdb2.NewClient(inst.URL, inst.Token)
	return &InfluxClient{bucket: inst.Bucket, client: c, query: c.QueryAPI(inst.Org)}
}

// FieldValues returns the values of field on measurement written in the last hour.
func (c *InfluxClient) FieldValues(ctx context.Context, measurement, field string) ([]any, error) {
	flux := fmt.Sprintf(`from(bucket:%q) |> range(start:-1h) |> filter(fn:(r) => r._measurement == %q and r._field == %q)`,
		c.bucket, measurement, field)
	res, err := c.query.Query(ctx, flux)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	var out []any
	for res.Next() {
		out = append(out, res.Record().Value())
	}
	return out, res.Err()
}

func (c *InfluxClient) Close() { c.client.Close() }
