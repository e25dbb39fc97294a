package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAxis(t *testing.T) {
	before := testutil.ToFloat64(axisOutcomes.WithLabelValues("X", OutcomeOK))
	ObserveAxis("X", OutcomeOK, 2*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(axisOutcomes.WithLabelValues("X", OutcomeOK)))
}

func TestObserveDiagnostics(t *testing.T) {
	ObserveDiagnostics("Y", 1.2, []string{"tau1", "tau1"})
	assert.Equal(t, 1.2, testutil.ToFloat64(maxRHat.WithLabelValues("Y")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(convergenceWarnings.WithLabelValues("Y", "tau1")), 2.0)
}
