package pipeline

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ProgressTracker tracks progress of a counted batch such as tile writes.
// Add is safe for concurrent use.
type ProgressTracker struct {
	total       int64
	done        atomic.Int64
	bytes       atomic.Int64
	startTime   time.Time
	description string
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(total int64, description string) *ProgressTracker {
	return &ProgressTracker{
		total:       total,
		startTime:   time.Now(),
		description: description,
	}
}

// Add records n finished items totalling size bytes and returns the new count
func (p *ProgressTracker) Add(n int64, size int64) int64 {
	p.bytes.Add(size)
	return p.done.Add(n)
}

// Progress holds current progress information
type Progress struct {
	Current     int64
	Total       int64
	Bytes       int64
	Percentage  float64
	Elapsed     time.Duration
	ETA         time.Duration
	Throughput  float64 // items per second
	Description string
}

// Calculate returns the current progress metrics
func (p *ProgressTracker) Calculate() Progress {
	elapsed := time.Since(p.startTime)
	current := p.done.Load()

	var percentage, throughput float64
	var eta time.Duration

	if elapsed.Seconds() > 0 {
		throughput = float64(current) / elapsed.Seconds()
	}
	if p.total > 0 {
		percentage = float64(current) / float64(p.total) * 100
		if current > 0 && current < p.total && throughput > 0 {
			eta = time.Duration(float64(p.total-current) / throughput * float64(time.Second))
		}
	}

	return Progress{
		Current:     current,
		Total:       p.total,
		Bytes:       p.bytes.Load(),
		Percentage:  percentage,
		Elapsed:     elapsed.Round(time.Second),
		ETA:         eta.Round(time.Second),
		Throughput:  throughput,
		Description: p.description,
	}
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatBytes formats bytes in a human-readable format
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
