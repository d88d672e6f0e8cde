/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: summary_writer.go
Description: Utility for writing run summaries as JSON. Files are named by time, run id and
tool version so summaries from many runs can sit in one directory.
*/

package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteRunSummary writes summary to dir and returns the file path
func WriteRunSummary(dir, runID, version string, summary interface{}) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create summary directory: %w", err)
	}

	// 2024-06-11_01-30-00_run_1b4e28ba_v1.0.0.json
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filePath := filepath.Join(dir, fmt.Sprintf("%s_run_%s_v%s.json", timestamp, short, version))

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}
	return filePath, nil
}
