package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlore/questpub/pkg/questpub"
	"github.com/questlore/questpub/pkg/questpub/metrics"
)

var _ questpub.Metrics = (*metrics.Recorder)(nil)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := metrics.New(reg)
	require.NoError(t, err)

	r.ObservePublish(questpub.OutcomeOK, 10*time.Millisecond)
	r.ObservePublish(questpub.OutcomeOK, 20*time.Millisecond)
	r.ObservePublish(questpub.OutcomeInvalid, time.Millisecond)
	r.ObserveUnpublish(questpub.OutcomeOK)
	r.ObserveUploadFailure(true)
	r.ObserveSearch(questpub.OutcomeOK, 3, time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(families, "questpub_publish_total", "outcome", questpub.OutcomeOK))
	assert.Equal(t, 1.0, counterValue(families, "questpub_publish_total", "outcome", questpub.OutcomeInvalid))
	assert.Equal(t, 1.0, counterValue(families, "questpub_unpublish_total", "outcome", questpub.OutcomeOK))
	assert.Equal(t, 1.0, counterValue(families, "questpub_upload_failures_total", "tolerated", "true"))
	assert.Equal(t, 1.0, counterValue(families, "questpub_search_total", "outcome", questpub.OutcomeOK))
}

func counterValue(families []*dto.MetricFamily, name, label, value string) float64 {
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.New(reg)
	require.NoError(t, err)

	_, err = metrics.New(reg)
	assert.Error(t, err)
}
