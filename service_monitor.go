package grantkit

import (
	"sync"
	"time"
)

// CommandMetrics provides command performance and failure statistics.
type CommandMetrics struct {
	TotalCommands      int64            `json:"total_commands"`
	SuccessfulCommands int64            `json:"successful_commands"`
	FailedCommands     int64            `json:"failed_commands"`
	AverageDuration    time.Duration    `json:"average_duration"`
	MaxDuration        time.Duration    `json:"max_duration"`
	MinDuration        time.Duration    `json:"min_duration"`
	ByCommand          map[string]int64 `json:"by_command"`
	LastReset          time.Time        `json:"last_reset"`
}

// commandMonitor holds the internal command monitoring state
type commandMonitor struct {
	mu            sync.RWMutex
	totalCount    int64
	successCount  int64
	failureCount  int64
	totalDuration int64 // nanoseconds
	maxDuration   int64 // nanoseconds
	minDuration   int64 // nanoseconds
	byCommand     map[string]int64
	lastReset     time.Time
}

// newCommandMonitor creates a new command monitor
func newCommandMonitor() *commandMonitor {
	return &commandMonitor{
		minDuration: int64(time.Hour), // Initialize to a large value
		byCommand:   make(map[string]int64),
		lastReset:   time.Now(),
	}
}

// record records a command completion with its duration and success status
func (cm *commandMonitor) record(command string, duration time.Duration, success bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.totalCount++
	cm.totalDuration += int64(duration)
	cm.byCommand[command]++

	if success {
		cm.successCount++
	} else {
		cm.failureCount++
	}

	durationNs := int64(duration)
	if durationNs > cm.maxDuration {
		cm.maxDuration = durationNs
	}
	if durationNs < cm.minDuration {
		cm.minDuration = durationNs
	}
}

// getMetrics returns the current command metrics
func (cm *commandMonitor) getMetrics() CommandMetrics {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var avgDuration time.Duration
	if cm.totalCount > 0 {
		avgDuration = time.Duration(cm.totalDuration / cm.totalCount)
	}

	byCommand := make(map[string]int64, len(cm.byCommand))
	for k, v := range cm.byCommand {
		byCommand[k] = v
	}

	return CommandMetrics{
		TotalCommands:      cm.totalCount,
		SuccessfulCommands: cm.successCount,
		FailedCommands:     cm.failureCount,
		AverageDuration:    avgDuration,
		MaxDuration:        time.Duration(cm.maxDuration),
		MinDuration:        time.Duration(cm.minDuration),
		ByCommand:          byCommand,
		LastReset:          cm.lastReset,
	}
}

// reset resets all metrics
func (cm *commandMonitor) reset() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.totalCount = 0
	cm.successCount = 0
	cm.failureCount = 0
	cm.totalDuration = 0
	cm.maxDuration = 0
	cm.minDuration = int64(time.Hour)
	cm.byCommand = make(map[string]int64)
	cm.lastReset = time.Now()
}
