// Wall-controller specific metrics definitions
//
// Defines all metrics for the wall controller including:
// - Wire/frame metrics
// - RPC correlation metrics
// - Connection lifecycle metrics
// - Device state cache metrics
//
// Copyright (C) 2026  Wallctl Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import "sync"

// WallMetrics holds all wall-controller metrics
type WallMetrics struct {
	// Wire metrics
	FramesIn        *Counter
	FramesOut       *Counter
	FramesMalformed *Counter

	// RPC metrics
	RPCSent           *Counter
	RPCTimeouts       *Counter
	RPCProtocolErrors *Counter
	RPCUnmatched      *Counter
	RPCQueued         *Counter

	// Connection lifecycle metrics
	ConnectionState   *Gauge // 0=disconnected 1=connecting 2=awaiting handshake 3=ready
	Reconnects        *Counter
	HandshakeFailures *Counter
	PingsAnswered     *Counter
	PingsIgnored      *Counter

	// Cache metrics
	NotificationsApplied *Counter
	NotificationsDropped *Counter
	RefreshDuration      *Histogram
	CacheDisplays        *Gauge
	CacheLayouts         *Gauge
	CacheSnapshots       *Gauge

	registry *Registry
}

// NewWallMetrics creates and registers all wall-controller metrics
func NewWallMetrics() *WallMetrics {
	reg := NewRegistry()
	m := &WallMetrics{
		FramesIn:        NewCounter("wallctl_frames_in_total", "Complete frames received from the device"),
		FramesOut:       NewCounter("wallctl_frames_out_total", "Frames transmitted to the device"),
		FramesMalformed: NewCounter("wallctl_frames_malformed_total", "Frames dropped because they failed to parse"),

		RPCSent:           NewCounter("wallctl_rpc_sent_total", "RPC requests transmitted"),
		RPCTimeouts:       NewCounter("wallctl_rpc_timeouts_total", "RPC calls expired without a response"),
		RPCProtocolErrors: NewCounter("wallctl_rpc_protocol_errors_total", "RPC calls rejected by the device"),
		RPCUnmatched:      NewCounter("wallctl_rpc_unmatched_total", "Responses dropped with no matching call"),
		RPCQueued:         NewCounter("wallctl_rpc_queued_total", "Calls queued while the handshake was incomplete"),

		ConnectionState:   NewGauge("wallctl_connection_state", "Connection lifecycle state"),
		Reconnects:        NewCounter("wallctl_reconnects_total", "Connection attempts after the first"),
		HandshakeFailures: NewCounter("wallctl_handshake_failures_total", "Handshakes that errored or timed out"),
		PingsAnswered:     NewCounter("wallctl_pings_answered_total", "Keep-alive pings answered with pong"),
		PingsIgnored:      NewCounter("wallctl_pings_ignored_total", "Pings ignored before handshake completion"),

		NotificationsApplied: NewCounter("wallctl_notifications_applied_total", "Server notifications applied to the cache"),
		NotificationsDropped: NewCounter("wallctl_notifications_dropped_total", "Notifications ignored as unparseable or out of scope"),
		RefreshDuration:      NewHistogram("wallctl_refresh_duration_seconds", "Duration of full state refreshes", nil),
		CacheDisplays:        NewGauge("wallctl_cache_displays", "Displays currently mirrored in the cache"),
		CacheLayouts:         NewGauge("wallctl_cache_layouts", "Layouts currently mirrored in the cache"),
		CacheSnapshots:       NewGauge("wallctl_cache_snapshots", "Snapshots currently mirrored in the cache"),

		registry: reg,
	}

	reg.MustRegister(m.FramesIn)
	reg.MustRegister(m.FramesOut)
	reg.MustRegister(m.FramesMalformed)
	reg.MustRegister(m.RPCSent)
	reg.MustRegister(m.RPCTimeouts)
	reg.MustRegister(m.RPCProtocolErrors)
	reg.MustRegister(m.RPCUnmatched)
	reg.MustRegister(m.RPCQueued)
	reg.MustRegister(m.ConnectionState)
	reg.MustRegister(m.Reconnects)
	reg.MustRegister(m.HandshakeFailures)
	reg.MustRegister(m.PingsAnswered)
	reg.MustRegister(m.PingsIgnored)
	reg.MustRegister(m.NotificationsApplied)
	reg.MustRegister(m.NotificationsDropped)
	reg.MustRegister(m.RefreshDuration)
	reg.MustRegister(m.CacheDisplays)
	reg.MustRegister(m.CacheLayouts)
	reg.MustRegister(m.CacheSnapshots)

	return m
}

// Registry returns the registry holding these metrics
func (m *WallMetrics) Registry() *Registry {
	return m.registry
}

var (
	globalOnce sync.Once
	globalWall *WallMetrics
)

// Global returns the process-wide metrics instance
func Global() *WallMetrics {
	globalOnce.Do(func() {
		globalWall = NewWallMetrics()
	})
	return globalWall
}
