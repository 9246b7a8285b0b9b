package stats

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	collectormetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// OTLPPusher exports gauges and counters to an OTLP gRPC collector.
type OTLPPusher struct {
	address   string
	secure    bool
	authToken string
	resource  *resourcepb.Resource

	mu   sync.Mutex
	conn *grpc.ClientConn
}

func NewOTLPPusher(endpoint, authToken, serviceName, serviceVersion, environment string) (*OTLPPusher, error) {
	address, secure, err := parseOTLPEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	return &OTLPPusher{
		address:   address,
		secure:    secure,
		authToken: strings.TrimSpace(authToken),
		resource:  buildResource(serviceName, serviceVersion, environment),
	}, nil
}

func (p *OTLPPusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	metrics := buildOTLPMetrics(families, uint64(time.Now().UnixNano()))
	if len(metrics) == 0 {
		return nil
	}

	conn, err := p.connection()
	if err != nil {
		return err
	}
	if p.authToken != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+p.authToken)
	}

	_, err = collectormetricspb.NewMetricsServiceClient(conn).Export(ctx, &collectormetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			Resource: p.resource,
			ScopeMetrics: []*metricspb.ScopeMetrics{{
				Scope:   &commonpb.InstrumentationScope{Name: "packhub.stats"},
				Metrics: metrics,
			}},
		}},
	})
	return err
}

// Close releases the gRPC connection.
func (p *OTLPPusher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *OTLPPusher) connection() (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return p.conn, nil
	}
	creds := insecure.NewCredentials()
	if p.secure {
		creds = credentials.NewClientTLSFromCert(nil, "")
	}
	conn, err := grpc.NewClient(p.address, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return conn, nil
}

func parseOTLPEndpoint(endpoint string) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, errors.New("metrics push endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		return endpoint, false, nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid metrics push endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, errors.New("metrics push endpoint host is required")
	}
	return parsed.Host, parsed.Scheme == "https" || parsed.Scheme == "grpcs", nil
}

func buildResource(serviceName, serviceVersion, environment string) *resourcepb.Resource {
	attrs := make([]*commonpb.KeyValue, 0, 3)
	for _, kv := range [][2]string{
		{"service.name", serviceName},
		{"service.version", serviceVersion},
		{"deployment.environment", environment},
	} {
		if kv[1] == "" {
			continue
		}
		attrs = append(attrs, stringKeyValue(kv[0], kv[1]))
	}
	return &resourcepb.Resource{Attributes: attrs}
}

func buildOTLPMetrics(families []*dto.MetricFamily, now uint64) []*metricspb.Metric {
	metrics := make([]*metricspb.Metric, 0, len(families))
	for _, family := range families {
		points := make([]*metricspb.NumberDataPoint, 0, len(family.GetMetric()))
		for _, metric := range family.GetMetric() {
			value, ok := metricValue(family.GetType(), metric)
			if !ok {
				continue
			}
			attrs := make([]*commonpb.KeyValue, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				attrs = append(attrs, stringKeyValue(label.GetName(), label.GetValue()))
			}
			points = append(points, &metricspb.NumberDataPoint{
				Attributes:   attrs,
				TimeUnixNano: now,
				Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: value},
			})
		}
		if len(points) == 0 {
			continue
		}

		m := &metricspb.Metric{Name: family.GetName(), Description: family.GetHelp()}
		if family.GetType() == dto.MetricType_COUNTER {
			m.Data = &metricspb.Metric_Sum{Sum: &metricspb.Sum{
				IsMonotonic:            true,
				AggregationTemporality: metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE,
				DataPoints:             points,
			}}
		} else {
			m.Data = &metricspb.Metric_Gauge{Gauge: &metricspb.Gauge{DataPoints: points}}
		}
		metrics = append(metrics, m)
	}
	return metrics
}

func stringKeyValue(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}
