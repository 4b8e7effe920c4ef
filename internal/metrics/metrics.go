// Copyright confd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics provides the daemon's Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/hyperair/confd/internal/build"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	BuildInfoGauge      = "confd_build_info"
	RPCCallsTotal       = "confd_rpc_calls_total"
	RPCErrorsTotal      = "confd_rpc_errors_total"
	DatabasesGauge      = "confd_databases"
	ListenersGauge      = "confd_listeners"
	KnownClientsGauge   = "confd_known_clients"
	CacheHitsTotal      = "confd_client_cache_hits_total"
	CacheMissesTotal    = "confd_client_cache_misses_total"
)

// Metrics holds every Prometheus collector the daemon and client library
// register.
type Metrics struct {
	buildInfoGauge    *prometheus.GaugeVec
	RPCCalls          *prometheus.CounterVec
	RPCErrors         *prometheus.CounterVec
	Databases         prometheus.Gauge
	Listeners         prometheus.Gauge
	KnownClients      prometheus.Gauge
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
}

// NewMetrics registers every collector against reg and stamps the build
// info gauge once.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		buildInfoGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: BuildInfoGauge,
			Help: "Build information for confd.",
		}, []string{"version", "revision"}),
		RPCCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: RPCCallsTotal,
			Help: "Total number of RPC calls served by the daemon, by method.",
		}, []string{"method"}),
		RPCErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: RPCErrorsTotal,
			Help: "Total number of RPC calls that returned an error, by method and kind.",
		}, []string{"method", "kind"}),
		Databases: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: DatabasesGauge,
			Help: "Number of open databases, including the default database.",
		}),
		Listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: ListenersGauge,
			Help: "Number of live listener registrations across all databases.",
		}),
		KnownClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: KnownClientsGauge,
			Help: "Number of clients the daemon believes are currently connected.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: CacheHitsTotal,
			Help: "Total number of client cache Get calls satisfied without a remote lookup.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: CacheMissesTotal,
			Help: "Total number of client cache Get calls that issued a remote lookup.",
		}),
	}

	reg.MustRegister(
		m.buildInfoGauge,
		m.RPCCalls,
		m.RPCErrors,
		m.Databases,
		m.Listeners,
		m.KnownClients,
		m.CacheHits,
		m.CacheMisses,
	)
	m.buildInfoGauge.WithLabelValues(build.Version, build.Revision).Set(1)
	return m
}

// Handler returns the HTTP handler that serves reg's metrics in the
// Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
