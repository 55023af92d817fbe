package opshttp

import (
	"net/http"

	"github.com/tfmkt/transfermarkt-api/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	UseRecoverMW bool
	OnPanic      func() // e.g. increment the panic counter
}
