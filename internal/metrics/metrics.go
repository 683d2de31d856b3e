// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes Prometheus counters and gauges for the runtime
// (framing/codec errors, push/pull counts), served over an admin HTTP
// endpoint alongside the rest of the process's external interfaces.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramingErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ossia",
		Name:      "framing_errors_total",
		Help:      "Stream framing errors (oversize frame, invalid SLIP escape), by transport address.",
	}, []string{"transport"})

	CodecErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ossia",
		Name:      "codec_errors_total",
		Help:      "Malformed OSC packets dropped during decode, by transport address.",
	}, []string{"transport"})

	PushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ossia",
		Name:      "pushes_total",
		Help:      "Parameter value pushes sent, by protocol binding.",
	}, []string{"protocol"})

	PullsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ossia",
		Name:      "pulls_total",
		Help:      "Parameter value pulls served, by protocol binding.",
	}, []string{"protocol"})

	ConnectedTransports = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ossia",
		Name:      "connected_transports",
		Help:      "Currently open transport connections, by kind.",
	}, []string{"kind"})

	MirrorState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ossia",
		Name:      "mirror_state",
		Help:      "Current OSCQuery mirror state machine value (0=DISCONNECTED .. 5=STOPPED), by mirror URL.",
	}, []string{"mirror"})
)

func init() {
	prometheus.MustRegister(FramingErrors, CodecErrors, PushesTotal, PullsTotal, ConnectedTransports, MirrorState)
}

// Handler returns the HTTP handler to mount at the admin endpoint's
// "/metrics" path.
func Handler() http.Handler {
	return promhttp.Handler()
}
