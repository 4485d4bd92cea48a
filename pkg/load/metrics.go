/*
Copyright 2022 Codenotary Inc. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package load

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsPrefix = "docload_"

// Metrics exposes the load counters to Prometheus for long-running
// loads.
type Metrics struct {
	recordsRead    prometheus.Counter
	bytesRead      prometheus.Counter
	recordsWritten prometheus.Counter
	bytesWritten   prometheus.Counter
	rowsSkipped    prometheus.Counter
}

// NewMetrics registers the load counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		recordsRead: factory.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "records_read_total",
			Help: "Number of documents read from dump files",
		}),
		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "bytes_read_total",
			Help: "Number of document bytes read from dump files",
		}),
		recordsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "records_written_total",
			Help: "Number of documents written to the target store",
		}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "bytes_written_total",
			Help: "Number of document bytes written to the target store",
		}),
		rowsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "rows_skipped_total",
			Help: "Number of documents dropped with a report",
		}),
	}
}
