// Package metrics holds the Prometheus instruments of the publication
// engine. A Recorder is passed to the service with questpub.WithMetrics and
// its collectors are registered on the registerer given to New.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "questpub"

// Recorder implements questpub.Metrics on Prometheus collectors.
type Recorder struct {
	PublishTotal         *prometheus.CounterVec
	PublishDuration      prometheus.Histogram
	UnpublishTotal       *prometheus.CounterVec
	UploadFailuresTotal  *prometheus.CounterVec
	SearchTotal          *prometheus.CounterVec
	SearchDuration       prometheus.Histogram
	SearchResultsPerPage prometheus.Histogram
}

// New creates a Recorder and registers its collectors with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_total",
				Help:      "Publish calls by outcome.",
			}, []string{"outcome"}),
		PublishDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_duration_seconds",
				Help:      "Time spent in publish, upload included.",
				Buckets:   prometheus.DefBuckets,
			}),
		UnpublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unpublish_total",
				Help:      "Unpublish calls by outcome.",
			}, []string{"outcome"}),
		UploadFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_failures_total",
				Help:      "Failed artifact uploads; tolerated=true means metadata was written anyway.",
			}, []string{"tolerated"}),
		SearchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_total",
				Help:      "Search calls by outcome.",
			}, []string{"outcome"}),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Time spent answering a search.",
				Buckets:   prometheus.DefBuckets,
			}),
		SearchResultsPerPage: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_results",
				Help:      "Quests returned per search page.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			}),
	}

	for _, c := range []prometheus.Collector{
		r.PublishTotal,
		r.PublishDuration,
		r.UnpublishTotal,
		r.UploadFailuresTotal,
		r.SearchTotal,
		r.SearchDuration,
		r.SearchResultsPerPage,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ObservePublish(outcome string, elapsed time.Duration) {
	r.PublishTotal.WithLabelValues(outcome).Inc()
	r.PublishDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveUnpublish(outcome string) {
	r.UnpublishTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveUploadFailure(tolerated bool) {
	r.UploadFailuresTotal.WithLabelValues(strconv.FormatBool(tolerated)).Inc()
}

func (r *Recorder) ObserveSearch(outcome string, results int, elapsed time.Duration) {
	r.SearchTotal.WithLabelValues(outcome).Inc()
	r.SearchDuration.Observe(elapsed.Seconds())
	if outcome == "ok" {
		r.SearchResultsPerPage.Observe(float64(results))
	}
}
