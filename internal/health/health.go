package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status агрегированное состояние зависимости или всего сервиса.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const defaultTimeout = 2 * time.Second

// severity упорядочивает статусы: итог отчёта равен худшему из компонентов.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check результат одной проверки.
type Check struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report тело ответа /healthz.
type Report struct {
	Status        Status    `json:"status"`
	Version       string    `json:"version,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Components    []Check   `json:"components,omitempty"`
}

// Checker проверяет одну зависимость витрины.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler собирает проверки зависимостей и отдаёт их по HTTP.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
	now      func() time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		version:  version,
		started:  time.Now(),
		now:      time.Now,
	}
}

// RegisterChecker повторная регистрация под тем же именем заменяет проверку.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) snapshot() ([]string, []Checker) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = h.checkers[name]
	}
	return names, checkers
}

// Evaluate запускает все проверки параллельно и сводит их в отчёт.
func (h *Handler) Evaluate(ctx context.Context) Report {
	names, checkers := h.snapshot()
	components := make([]Check, len(checkers))

	var g errgroup.Group
	for i := range checkers {
		g.Go(func() error {
			components[i] = checkers[i].Check(ctx)
			if components[i].Name == "" {
				components[i].Name = names[i]
			}
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	for _, c := range components {
		if c.Status.severity() > overall.severity() {
			overall = c.Status
		}
	}

	now := h.now()
	return Report{
		Status:        overall,
		Version:       h.version,
		CheckedAt:     now.UTC(),
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
		Components:    components,
	}
}

// ServeHTTP отдаёт полный отчёт; 503 только для unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Evaluate(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// ReadinessHandler деградация (например, недоступный Redis) готовность не снимает.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		writePlain(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writePlain(w, http.StatusOK, "ready")
}

// Watch периодически пересчитывает статус и вызывает onChange при его смене.
// Первый вызов происходит сразу. Блокируется до отмены ctx.
func (h *Handler) Watch(ctx context.Context, interval time.Duration, onChange func(Status)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Status
	for {
		if status := h.Evaluate(ctx).Status; status != last {
			last = status
			onChange(status)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writePlain(w, http.StatusOK, "ok")
}

func writePlain(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// PingChecker проверяет зависимость функцией ping с таймаутом.
type PingChecker struct {
	name     string
	timeout  time.Duration
	critical bool
	ping     func(ctx context.Context) error
}

// Option настраивает PingChecker.
type Option func(*PingChecker)

func WithTimeout(timeout time.Duration) Option {
	return func(c *PingChecker) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NonCritical: отказ зависимости переводит сервис в degraded, а не в unhealthy.
func NonCritical() Option {
	return func(c *PingChecker) { c.critical = false }
}

func NewPingChecker(name string, ping func(ctx context.Context) error, opts ...Option) *PingChecker {
	c := &PingChecker{name: name, timeout: defaultTimeout, critical: true, ping: ping}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *PingChecker) Check(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	err := c.ping(ctx)
	result := Check{Name: c.name, Status: StatusHealthy, LatencyMs: time.Since(started).Milliseconds()}
	if err == nil {
		return result
	}

	result.Error = err.Error()
	result.Status = StatusUnhealthy
	if !c.critical {
		result.Status = StatusDegraded
	}
	return result
}
