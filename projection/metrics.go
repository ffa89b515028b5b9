package projection

import (
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var (
	hits          = metrics.NewCounter(`lanyards_projection_hits_total`)
	misses        = metrics.NewCounter(`lanyards_projection_misses_total`)
	invalidations = metrics.NewCounter(`lanyards_projection_invalidations_total`)
	buildFailures = metrics.NewCounter(`lanyards_projection_build_failures_total`)
	buildDuration = metrics.NewHistogram(`lanyards_projection_build_duration_seconds`)
)

func observeBuild(start time.Time, err error) {
	buildDuration.UpdateDuration(start)
	if err != nil {
		buildFailures.Inc()
	}
}
