package statistics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains all statistics for one resize run.
type Statistics struct {
	InputFilesFound int64
	TargetsParsed   int64

	JobsPlanned   int64
	JobsProcessed int64
	JobsSkipped   int64
	JobsFailed    int64

	BytesIn  int64
	BytesOut int64

	MetadataExtracted int64
	MetadataFailures  int64

	ReportKeysPruned    int64
	UnknownFilesFound   int64
	UnknownFilesDeleted int64

	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	JobsPerSecond float64

	// CompressionRatio is BytesOut/BytesIn over every reported job.
	CompressionRatio float64

	Errors []StatError

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
		Errors:    make([]StatError, 0),
	}
}

// AddInputFiles records discovered input images.
func (s *Statistics) AddInputFiles(n int) {
	atomic.AddInt64(&s.InputFilesFound, int64(n))
}

// AddTargets records parsed targets.
func (s *Statistics) AddTargets(n int) {
	atomic.AddInt64(&s.TargetsParsed, int64(n))
}

// AddJobsPlanned records planned jobs.
func (s *Statistics) AddJobsPlanned(n int) {
	atomic.AddInt64(&s.JobsPlanned, int64(n))
}

// IncrementJobsProcessed increases the count of built outputs by 1.
func (s *Statistics) IncrementJobsProcessed() {
	atomic.AddInt64(&s.JobsProcessed, 1)
}

// IncrementJobsSkipped increases the count of up-to-date outputs by 1.
func (s *Statistics) IncrementJobsSkipped() {
	atomic.AddInt64(&s.JobsSkipped, 1)
}

// IncrementJobsFailed increases the count of failed jobs by 1.
func (s *Statistics) IncrementJobsFailed() {
	atomic.AddInt64(&s.JobsFailed, 1)
}

// AddBytes adds the sizes of one job's input and output.
func (s *Statistics) AddBytes(in, out int64) {
	atomic.AddInt64(&s.BytesIn, in)
	atomic.AddInt64(&s.BytesOut, out)
}

// IncrementMetadataExtracted increases the count of files with metadata by 1.
func (s *Statistics) IncrementMetadataExtracted() {
	atomic.AddInt64(&s.MetadataExtracted, 1)
}

// IncrementMetadataFailures increases the count of unreadable metadata by 1.
func (s *Statistics) IncrementMetadataFailures() {
	atomic.AddInt64(&s.MetadataFailures, 1)
}

// AddReportKeysPruned records report entries removed during reconciliation.
func (s *Statistics) AddReportKeysPruned(n int) {
	atomic.AddInt64(&s.ReportKeysPruned, int64(n))
}

// AddUnknownFiles records files found in the output directory that no job produces.
func (s *Statistics) AddUnknownFiles(n int) {
	atomic.AddInt64(&s.UnknownFilesFound, int64(n))
}

// IncrementUnknownFilesDeleted increases the count of deleted unknown files by 1.
func (s *Statistics) IncrementUnknownFilesDeleted() {
	atomic.AddInt64(&s.UnknownFilesDeleted, 1)
}

// Finalize calculates duration, throughput and the overall compression ratio.
// Only the first call records the end time.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.EndTime.IsZero() {
		return
	}
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	done := atomic.LoadInt64(&s.JobsProcessed) + atomic.LoadInt64(&s.JobsSkipped)
	if s.Duration.Seconds() > 0 {
		s.JobsPerSecond = float64(done) / s.Duration.Seconds()
	}

	if in := atomic.LoadInt64(&s.BytesIn); in > 0 {
		s.CompressionRatio = float64(atomic.LoadInt64(&s.BytesOut)) / float64(in)
	}
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return fmt.Sprintf(`Photo Resizer Statistics Summary:

Inputs:
		Images Found: %d
		Targets: %d

Jobs:
		Planned: %d
		Processed: %d
		Skipped: %d
		Failed: %d

Sizes:
		Input Bytes: %s
		Output Bytes: %s
		Compression Ratio: %.3f

Metadata:
		Extracted: %d
		Failures: %d
		Report Keys Pruned: %d

Output Directory:
		Unknown Files: %d
		Deleted: %d

Performance:
		Duration: %v
		Jobs/Second: %.2f`,
		atomic.LoadInt64(&s.InputFilesFound),
		atomic.LoadInt64(&s.TargetsParsed),
		atomic.LoadInt64(&s.JobsPlanned),
		atomic.LoadInt64(&s.JobsProcessed),
		atomic.LoadInt64(&s.JobsSkipped),
		atomic.LoadInt64(&s.JobsFailed),
		formatBytes(atomic.LoadInt64(&s.BytesIn)),
		formatBytes(atomic.LoadInt64(&s.BytesOut)),
		s.CompressionRatio,
		atomic.LoadInt64(&s.MetadataExtracted),
		atomic.LoadInt64(&s.MetadataFailures),
		atomic.LoadInt64(&s.ReportKeysPruned),
		atomic.LoadInt64(&s.UnknownFilesFound),
		atomic.LoadInt64(&s.UnknownFilesDeleted),
		s.Duration,
		s.JobsPerSecond)
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	return formatBytes(bytes)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// GetJobsFailed returns the number of failed jobs.
func (s *Statistics) GetJobsFailed() int64 {
	return atomic.LoadInt64(&s.JobsFailed)
}

// GetDuration returns the total duration of the operation.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}
