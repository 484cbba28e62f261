// Package health reports the state of the open connection pools.
package health

import (
	"context"
	"time"

	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/pool"
)

type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

func (s Status) rank() int {
	switch s {
	case Degraded:
		return 1
	case Unhealthy:
		return 2
	}
	return 0
}

type Report struct {
	Connection string    `json:"connection_name"`
	Driver     string    `json:"driver"`
	Status     Status    `json:"status"`
	LatencyMS  float64   `json:"latency_ms"`
	Idle       int32     `json:"idle"`
	InUse      int32     `json:"in_use"`
	Total      int32     `json:"total"`
	Max        int32     `json:"max"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

type Summary struct {
	Status      Status   `json:"status"`
	Connections []Report `json:"connections"`
}

type Reporter struct {
	pools   *pool.Set
	timeout time.Duration
}

// NewReporter returns a reporter that waits at most timeout for a pooled
// connection before calling the pool degraded.
func NewReporter(pools *pool.Set, timeout time.Duration) *Reporter {
	return &Reporter{pools: pools, timeout: timeout}
}

// Check runs one round trip on the named connection. Only an unknown name
// is an error; an unreachable database is an unhealthy report.
func (r *Reporter) Check(ctx context.Context, name string) (Report, error) {
	m, err := r.pools.Get(name)
	if err != nil {
		return Report{}, err
	}
	return r.check(ctx, m), nil
}

func (r *Reporter) check(ctx context.Context, m *pool.Manager) Report {
	sampled := m.Stat()
	latency, err := m.Ping(ctx, r.timeout)
	stat := m.Stat()
	rep := Report{
		Connection: m.Name(),
		Driver:     m.Dialect().Name(),
		Status:     Healthy,
		LatencyMS:  float64(latency.Microseconds()) / 1000,
		Idle:       stat.Idle,
		InUse:      stat.InUse,
		Total:      stat.Total,
		Max:        stat.Max,
		CheckedAt:  time.Now().UTC(),
	}
	switch {
	case err == nil:
		if sampled.Saturated() {
			rep.Status = Degraded
		}
	case dberr.KindOf(err) == dberr.PoolExhausted:
		rep.Status = Degraded
		rep.Error = err.Error()
	default:
		rep.Status = Unhealthy
		rep.Error = err.Error()
	}
	return rep
}

// CheckAll checks every open connection. The summary carries the worst
// status found; no open connection is healthy.
func (r *Reporter) CheckAll(ctx context.Context) Summary {
	sum := Summary{Status: Healthy, Connections: []Report{}}
	for _, m := range r.pools.All() {
		rep := r.check(ctx, m)
		if rep.Status.rank() > sum.Status.rank() {
			sum.Status = rep.Status
		}
		sum.Connections = append(sum.Connections, rep)
	}
	return sum
}
