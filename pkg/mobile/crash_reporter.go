/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: crash_reporter.go
Description: Crash collection for deep-link fuzzing. Clears logcat before a launch, scans the
dump after the observation window for crashes, ANRs and exceptions that mention the target
package, and writes one report file per crash including the payload that triggered it.
*/

package mobile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	crashRegex = regexp.MustCompile(`FATAL EXCEPTION|ANR in|SecurityException|java\.lang\.[A-Za-z]+(Exception|Error)`)
	timeRegex  = regexp.MustCompile(`^(\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3})`)
	// AndroidRuntime continuation lines: stack frames and "Process: <pkg>" lines
	continuationRegex = regexp.MustCompile(`AndroidRuntime|^\s+at |Caused by:`)
	stackFrameRegex   = regexp.MustCompile(`\bat [\w$.<>]+\(|Caused by:`)
)

// LogSource provides access to the device log
type LogSource interface {
	ClearLogs(ctx context.Context) error
	Logs(ctx context.Context) ([]string, error)
}

// CrashReport describes one crash observed after a dispatch
type CrashReport struct {
	ID          string
	RunID       string
	PackageName string
	Payload     string
	Timestamp   time.Time
	Type        string // crash, anr, exception
	Message     string
	StackTrace  string
	Logs        []string
}

// CrashCollector scans logcat for crashes of one package
type CrashCollector struct {
	source      LogSource
	packageName string
	outputDir   string
	runID       string
}

// NewCrashCollector creates a collector writing reports to outputDir
func NewCrashCollector(source LogSource, packageName, outputDir string) *CrashCollector {
	return &CrashCollector{source: source, packageName: packageName, outputDir: outputDir}
}

// SetRunID tags every collected report with the run it belongs to
func (r *CrashCollector) SetRunID(id string) {
	r.runID = id
}

// Prepare clears the log so the next Collect only sees new entries
func (r *CrashCollector) Prepare(ctx context.Context) error {
	return r.source.ClearLogs(ctx)
}

// Collect returns crashes found in the current log
func (r *CrashCollector) Collect(ctx context.Context, payload string) ([]*CrashReport, error) {
	lines, err := r.source.Logs(ctx)
	if err != nil {
		return nil, err
	}
	reports := ParseCrashes(lines, r.packageName, payload)
	for _, crash := range reports {
		crash.RunID = r.runID
	}
	return reports, nil
}

// ParseCrashes groups logcat lines into crash reports for packageName
func ParseCrashes(lines []string, packageName, payload string) []*CrashReport {
	var reports []*CrashReport
	var current *CrashReport
	for i, line := range lines {
		if crashRegex.MatchString(line) && mentionsPackage(lines, i, packageName) {
			if current != nil && !continuationRegex.MatchString(line) {
				reports = append(reports, current)
				current = nil
			}
			if current == nil {
				current = &CrashReport{
					ID:          uuid.New().String(),
					PackageName: packageName,
					Payload:     payload,
					Type:        crashType(line),
					Message:     line,
					Timestamp:   time.Now(),
				}
				if m := timeRegex.FindStringSubmatch(line); len(m) == 2 {
					if t, err := time.Parse("01-02 15:04:05.000", m[1]); err == nil {
						current.Timestamp = t.AddDate(time.Now().Year(), 0, 0)
					}
				}
			}
			current.Logs = append(current.Logs, line)
			continue
		}
		if current == nil {
			continue
		}
		if !continuationRegex.MatchString(line) {
			reports = append(reports, current)
			current = nil
			continue
		}
		current.Logs = append(current.Logs, line)
		if stackFrameRegex.MatchString(line) {
			current.StackTrace += strings.TrimSpace(line) + "\n"
		}
	}
	if current != nil {
		reports = append(reports, current)
	}
	return reports
}

// mentionsPackage reports whether the crash starting at lines[i] belongs to packageName.
// FATAL EXCEPTION headers name the process on the following line.
func mentionsPackage(lines []string, i int, packageName string) bool {
	if strings.Contains(lines[i], packageName) {
		return true
	}
	if i+1 < len(lines) && strings.Contains(lines[i], "FATAL EXCEPTION") {
		return strings.Contains(lines[i+1], packageName)
	}
	return false
}

func crashType(line string) string {
	switch {
	case strings.Contains(line, "ANR in"):
		return "anr"
	case strings.Contains(line, "FATAL EXCEPTION"):
		return "crash"
	default:
		return "exception"
	}
}

// Report writes crash to a timestamped file and returns its path
func (r *CrashCollector) Report(crash *CrashReport) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create crash directory: %w", err)
	}
	filename := filepath.Join(r.outputDir, fmt.Sprintf("crash_%s_%d_%s.txt", crash.PackageName, time.Now().UnixNano(), crash.ID[:8]))
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fmt.Fprintf(f, "Crash Report for %s\n", crash.PackageName)
	fmt.Fprintf(f, "ID: %s\n", crash.ID)
	if crash.RunID != "" {
		fmt.Fprintf(f, "Run: %s\n", crash.RunID)
	}
	fmt.Fprintf(f, "Timestamp: %v\n", crash.Timestamp)
	fmt.Fprintf(f, "Type: %s\n", crash.Type)
	fmt.Fprintf(f, "Payload: %q\n", crash.Payload)
	fmt.Fprintf(f, "Message: %s\n", crash.Message)
	fmt.Fprintf(f, "StackTrace:\n%s\n", crash.StackTrace)
	fmt.Fprintf(f, "Logs:\n")
	for _, l := range crash.Logs {
		fmt.Fprintln(f, l)
	}
	return filename, f.Close()
}
