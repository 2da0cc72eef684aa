/*
Package monitoring provides Prometheus metrics for the shell.

# Overview

Each Metrics value owns a private Prometheus registry, so constructing
several shells in one process (tests, embedded use) is safe. Every
recording method tolerates a nil receiver, which lets components treat
metrics as optional.

# Metrics

- Event bus: emits, deliveries, handler errors, slow handlers, rejected
  subscriptions, live subscription gauge
- Applications: registered/loaded/mounted gauges, lifecycle transitions,
  load latency
- Boot: step latency and failures
- HTTP and WebSocket: request latency, open connections

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
