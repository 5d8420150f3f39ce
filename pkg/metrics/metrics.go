// Package metrics is a dependency-free in-process registry exposing
// per-endpoint request stats and opportunity write counters.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type Registry struct {
	mu       sync.RWMutex
	endpoint map[string]*EndpointStat
	writes   map[string]int64
	category map[string]int64
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type Snapshot struct {
	GeneratedAt string                  `json:"generated_at"`
	Endpoints   map[string]EndpointStat `json:"endpoints"`
	Writes      map[string]int64        `json:"writes"`
	Categories  map[string]int64        `json:"categories"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint: map[string]*EndpointStat{},
		writes:   map[string]int64{},
		category: map[string]int64{},
	}
}

// Observe records one handled request for "METHOD /path".
func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

// IncWrite counts a successful mutation: created, updated or deleted.
func (r *Registry) IncWrite(op string) {
	if op == "" {
		return
	}
	r.mu.Lock()
	r.writes[op]++
	r.mu.Unlock()
}

// IncCategory counts a creation per category.
func (r *Registry) IncCategory(category string) {
	if category == "" {
		return
	}
	r.mu.Lock()
	r.category[category]++
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Endpoints:   make(map[string]EndpointStat, len(r.endpoint)),
		Writes:      make(map[string]int64, len(r.writes)),
		Categories:  make(map[string]int64, len(r.category)),
	}
	for k, v := range r.endpoint {
		snap.Endpoints[k] = *v
	}
	for k, v := range r.writes {
		snap.Writes[k] = v
	}
	for k, v := range r.category {
		snap.Categories[k] = v
	}
	return snap
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		b := &strings.Builder{}
		b.WriteString("# HELP opportunities_endpoint_count total requests by endpoint\n")
		b.WriteString("# TYPE opportunities_endpoint_count counter\n")
		for _, ep := range sortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "opportunities_endpoint_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].Count)
		}
		b.WriteString("# HELP opportunities_endpoint_error_count total endpoint errors\n")
		b.WriteString("# TYPE opportunities_endpoint_error_count counter\n")
		for _, ep := range sortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "opportunities_endpoint_error_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].ErrorCount)
		}
		b.WriteString("# HELP opportunities_endpoint_avg_millis endpoint average latency in milliseconds\n")
		b.WriteString("# TYPE opportunities_endpoint_avg_millis gauge\n")
		for _, ep := range sortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "opportunities_endpoint_avg_millis{endpoint=%q} %.3f\n", ep, snap.Endpoints[ep].AverageMillis)
		}
		b.WriteString("# HELP opportunities_writes_total successful mutations by operation\n")
		b.WriteString("# TYPE opportunities_writes_total counter\n")
		for _, op := range sortedKeys(snap.Writes) {
			fmt.Fprintf(b, "opportunities_writes_total{op=%q} %d\n", op, snap.Writes[op])
		}
		b.WriteString("# HELP opportunities_created_by_category_total creations by category\n")
		b.WriteString("# TYPE opportunities_created_by_category_total counter\n")
		for _, cat := range sortedKeys(snap.Categories) {
			fmt.Fprintf(b, "opportunities_created_by_category_total{category=%q} %d\n", cat, snap.Categories[cat])
		}
		_, _ = w.Write([]byte(b.String()))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
