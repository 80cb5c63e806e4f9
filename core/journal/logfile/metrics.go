package logfile

import "github.com/prometheus/client_golang/prometheus"

var (
	scansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ntfs_logfile_scans_total",
		Help: "Total number of journal consistency scans run",
	})

	emptyJournalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ntfs_logfile_empty_total",
		Help: "Total number of scans that found the journal empty",
	})

	invalidRestartPagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ntfs_logfile_invalid_restart_pages_total",
		Help: "Total number of restart page candidates rejected as inconsistent",
	})

	candidateRacesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ntfs_logfile_candidate_races_total",
		Help: "Total number of scans that had to pick between two valid restart pages",
	})
)

// RegisterMetrics registers the package's collectors with reg.  It is the
// consumer's choice whether and where the metrics are exposed.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		scansTotal,
		emptyJournalsTotal,
		invalidRestartPagesTotal,
		candidateRacesTotal,
	)
}
