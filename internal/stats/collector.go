package stats

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Snapshot is a point-in-time count of registry contents.
type Snapshot struct {
	Packs         int64
	Versions      int64
	Organizations int64
	Webhooks      int64
	Downloads     int64
}

// Collector owns the registry gauges pushed to the configured exporter.
type Collector struct {
	registry      *prometheus.Registry
	packs         prometheus.Gauge
	versions      prometheus.Gauge
	organizations prometheus.Gauge
	webhooks      prometheus.Gauge
	downloads     prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		packs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "packhub_packs_total",
			Help: "Number of registered packs.",
		}),
		versions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "packhub_pack_versions_total",
			Help: "Number of published pack versions.",
		}),
		organizations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "packhub_organizations_total",
			Help: "Number of organizations.",
		}),
		webhooks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "packhub_webhooks_active",
			Help: "Number of active webhook subscriptions.",
		}),
		downloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "packhub_downloads_total",
			Help: "Sum of pack download counters.",
		}),
	}
	c.registry.MustRegister(c.packs, c.versions, c.organizations, c.webhooks, c.downloads)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Set(s Snapshot) {
	c.packs.Set(float64(s.Packs))
	c.versions.Set(float64(s.Versions))
	c.organizations.Set(float64(s.Organizations))
	c.webhooks.Set(float64(s.Webhooks))
	c.downloads.Set(float64(s.Downloads))
}

// Count reads a Snapshot from the database.
func Count(ctx context.Context, db *gorm.DB) (Snapshot, error) {
	var s Snapshot
	counts := []struct {
		table string
		where string
		dest  *int64
	}{
		{"packs", "", &s.Packs},
		{"pack_versions", "", &s.Versions},
		{"organizations", "", &s.Organizations},
		{"webhooks", "active = true", &s.Webhooks},
	}
	for _, item := range counts {
		stmt := db.WithContext(ctx).Table(item.table)
		if item.where != "" {
			stmt = stmt.Where(item.where)
		}
		if err := stmt.Count(item.dest).Error; err != nil {
			return s, fmt.Errorf("count %s: %w", item.table, err)
		}
	}
	if err := db.WithContext(ctx).Table("packs").Select("COALESCE(SUM(downloads), 0)").Scan(&s.Downloads).Error; err != nil {
		return s, fmt.Errorf("sum downloads: %w", err)
	}
	return s, nil
}
