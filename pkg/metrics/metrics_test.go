// Unit tests for the metrics package
//
// Copyright (C) 2026  Wallctl Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_total", "A test counter")
	if c.Get() != 0 {
		t.Errorf("new counter should be 0, got %d", c.Get())
	}
	c.Inc()
	c.Add(4)
	if c.Get() != 5 {
		t.Errorf("expected 5, got %d", c.Get())
	}

	var sb strings.Builder
	c.Write(&sb)
	out := sb.String()
	if !strings.Contains(out, "# TYPE test_total counter") {
		t.Errorf("missing TYPE line: %s", out)
	}
	if !strings.Contains(out, "test_total 5") {
		t.Errorf("missing value line: %s", out)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "A test gauge")
	g.Set(3)
	g.Inc()
	g.Dec()
	g.Add(0.5)
	if g.Get() != 3.5 {
		t.Errorf("expected 3.5, got %v", g.Get())
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_seconds", "A test histogram", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(100)

	if h.Count() != 3 {
		t.Errorf("expected 3 observations, got %d", h.Count())
	}

	var sb strings.Builder
	h.Write(&sb)
	out := sb.String()
	if !strings.Contains(out, `test_seconds_bucket{le="0.1"} 1`) {
		t.Errorf("wrong 0.1 bucket: %s", out)
	}
	if !strings.Contains(out, `test_seconds_bucket{le="1"} 2`) {
		t.Errorf("wrong 1 bucket: %s", out)
	}
	if !strings.Contains(out, `test_seconds_bucket{le="+Inf"} 3`) {
		t.Errorf("wrong +Inf bucket: %s", out)
	}
	if !strings.Contains(out, "test_seconds_count 3") {
		t.Errorf("wrong count: %s", out)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(NewCounter("dup", "first")); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := reg.Register(NewCounter("dup", "second")); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestRegistryGather(t *testing.T) {
	reg := NewRegistry()
	c := NewCounter("gathered_total", "gathered")
	reg.MustRegister(c)
	c.Inc()

	out := reg.Gather()
	if !strings.Contains(out, "gathered_total 1") {
		t.Errorf("gather missing counter: %s", out)
	}
}

func TestWallMetricsRegistered(t *testing.T) {
	m := NewWallMetrics()
	for _, name := range []string{
		"wallctl_frames_in_total",
		"wallctl_rpc_sent_total",
		"wallctl_connection_state",
		"wallctl_refresh_duration_seconds",
	} {
		if m.Registry().Get(name) == nil {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := NewRegistry()
	c := NewCounter("endpoint_total", "served")
	reg.MustRegister(c)
	c.Add(2)

	srv := NewServer(reg, ":0")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.handleMetrics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "endpoint_total 2") {
		t.Errorf("body missing counter: %s", rec.Body.String())
	}
}

func TestMetricsEndpointBasicAuth(t *testing.T) {
	srv := NewServer(NewRegistry(), ":0")
	srv.SetBasicAuth("scraper", "secret")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.handleMetrics(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("scraper", "secret")
	rec = httptest.NewRecorder()
	srv.handleMetrics(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", rec.Code)
	}
}
