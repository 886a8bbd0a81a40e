package observability

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"
)

// Stage names a timed step of a diary conversation.
type Stage string

const (
	StageOpening   Stage = "completion_opening"
	StageReply     Stage = "completion_reply"
	StageSummary   Stage = "completion_summary"
	StageDiarySave Stage = "diary_save"
)

// CompletionStage maps a completion kind to its stage.
func CompletionStage(kind string) Stage {
	return Stage("completion_" + kind)
}

// DefaultLatencyTargets are the p95 budgets used for stages the
// configuration leaves unset.
var DefaultLatencyTargets = map[Stage]time.Duration{
	StageOpening:   4 * time.Second,
	StageReply:     8 * time.Second,
	StageSummary:   8 * time.Second,
	StageDiarySave: 250 * time.Millisecond,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	OverTarget  bool    `json:"over_target,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// latencyWindow keeps the most recent size samples of every stage, plus
// plain event counters.
type latencyWindow struct {
	mu       sync.Mutex
	size     int
	targets  map[Stage]time.Duration
	samples  map[Stage][]time.Duration
	counters map[string]int
}

func newLatencyWindow(size int, targets map[Stage]time.Duration) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	merged := make(map[Stage]time.Duration, len(DefaultLatencyTargets)+len(targets))
	for stage, d := range DefaultLatencyTargets {
		merged[stage] = d
	}
	for stage, d := range targets {
		merged[stage] = d
	}
	return &latencyWindow{
		size:     size,
		targets:  merged,
		samples:  make(map[Stage][]time.Duration),
		counters: make(map[string]int),
	}
}

func (w *latencyWindow) record(stage Stage, d time.Duration) {
	if stage == "" || d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := append(w.samples[stage], d)
	if len(s) > w.size {
		s = append(s[:0:0], s[len(s)-w.size:]...)
	}
	w.samples[stage] = s
}

func (w *latencyWindow) count(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counters[name]++
}

func (w *latencyWindow) snapshot(now time.Time) StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	stages := pie.Map(pie.Sort(pie.Keys(w.samples)), func(stage Stage) StageStats {
		return summarizeStage(stage, w.samples[stage], w.targets[stage])
	})
	indicators := pie.Map(pie.Sort(pie.Keys(w.counters)), func(name string) Indicator {
		return Indicator{Name: name, Count: w.counters[name]}
	})
	return StageSnapshot{
		GeneratedAt: now.UTC(),
		WindowSize:  w.size,
		Stages:      stages,
		Indicators:  indicators,
	}
}

// summarizeStage reports samples in arrival order; samples is never empty.
func summarizeStage(stage Stage, samples []time.Duration, target time.Duration) StageStats {
	sorted := pie.Sort(samples)
	p95 := nearestRank(sorted, 95)
	return StageStats{
		Stage:       string(stage),
		Samples:     len(sorted),
		LastMS:      millis(samples[len(samples)-1]),
		AvgMS:       millis(pie.Sum(sorted) / time.Duration(len(sorted))),
		P50MS:       millis(nearestRank(sorted, 50)),
		P95MS:       millis(p95),
		P99MS:       millis(nearestRank(sorted, 99)),
		TargetP95MS: millis(target),
		OverTarget:  target > 0 && p95 > target,
	}
}

// nearestRank returns the p-th percentile of sorted by the nearest-rank
// method.
func nearestRank(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// millis converts d to milliseconds rounded to two decimals.
func millis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
