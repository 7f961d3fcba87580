package service

import "expvar"

var (
	updatesTotal          = expvar.NewInt("updates_total")
	updatePanicsTotal     = expvar.NewInt("update_panics_total")
	distributionsTotal    = expvar.NewInt("distributions_total")
	distributionsAborted  = expvar.NewInt("distributions_aborted_total")
	deliveryFailuresTotal = expvar.NewInt("delivery_failures_total")
	snowballsTotal        = expvar.NewInt("snowballs_total")
)
