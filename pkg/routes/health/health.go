package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

const probeTimeout = 2 * time.Second

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

type probe struct {
	name string
	ping PingFunc
}

// Checker serves liveness, readiness and a dependency report.
type Checker struct {
	version string
	started time.Time
	probes  []probe
	ready   atomic.Bool
}

func NewChecker(version string) *Checker {
	return &Checker{version: version, started: time.Now()}
}

// AddCheck registers a dependency probe. Not safe once serving has begun.
func (c *Checker) AddCheck(name string, ping PingFunc) {
	c.probes = append(c.probes, probe{name: name, ping: ping})
}

func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", c.Health)
	e.GET("/health/live", c.Live)
	e.GET("/health/ready", c.Ready)
}

type Dependency struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

type Report struct {
	Status       string       `json:"status"`
	Version      string       `json:"version"`
	Uptime       string       `json:"uptime"`
	Dependencies []Dependency `json:"dependencies"`
}

// probeAll pings every dependency in parallel. Results are ordered by name.
func (c *Checker) probeAll(ctx context.Context) ([]Dependency, bool) {
	deps := make([]Dependency, len(c.probes))
	var wg sync.WaitGroup
	for i, p := range c.probes {
		wg.Add(1)
		go func(i int, p probe) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			began := time.Now()
			err := p.ping(pctx)
			deps[i] = Dependency{Name: p.name, OK: err == nil, Latency: time.Since(began).String()}
			if err != nil {
				deps[i].Error = err.Error()
			}
		}(i, p)
	}
	wg.Wait()

	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	healthy := true
	for _, d := range deps {
		healthy = healthy && d.OK
	}
	return deps, healthy
}

func (c *Checker) Health(ctx echo.Context) error {
	deps, healthy := c.probeAll(ctx.Request().Context())
	report := Report{
		Status:       "healthy",
		Version:      c.version,
		Uptime:       time.Since(c.started).Round(time.Second).String(),
		Dependencies: deps,
	}
	code := http.StatusOK
	if !healthy {
		report.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, report)
}

func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready requires both the startup flag and every dependency probe.
func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "starting"})
	}
	if _, healthy := c.probeAll(ctx.Request().Context()); !healthy {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
