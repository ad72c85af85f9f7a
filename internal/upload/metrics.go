package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storedFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_stored_files_total",
			Help: "Total number of uploaded files written to the image directory",
		},
		[]string{"field"},
	)

	storedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_stored_bytes_total",
			Help: "Total bytes of uploaded files written to the image directory",
		},
		[]string{"field"},
	)

	rejectedFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_rejected_files_total",
			Help: "Total number of uploaded files dropped by the type filter",
		},
		[]string{"field", "reason"},
	)
)
