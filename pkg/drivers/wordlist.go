/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: wordlist.go
Description: Wordlist driver. Reads a wordlist line by line and dispatches one request per line,
in file order. Lines are not trimmed, so the line terminator travels with the payload;
CRLF and CR terminators are read as LF.
*/

package drivers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kleascm/fuzzdeep/pkg/payload"
	"github.com/sirupsen/logrus"
)

// WordlistDriver dispatches every line of a wordlist
type WordlistDriver struct {
	path       string
	target     string
	dispatcher Dispatcher
	logger     *logrus.Logger
}

// NewWordlistDriver creates a driver for the wordlist at path
func NewWordlistDriver(path, target string, dispatcher Dispatcher, logger *logrus.Logger) *WordlistDriver {
	return &WordlistDriver{
		path:       path,
		target:     target,
		dispatcher: dispatcher,
		logger:     loggerOrDefault(logger),
	}
}

// Run dispatches the whole file and returns the number of requests sent
func (w *WordlistDriver) Run(ctx context.Context) (int, error) {
	tmpl, err := payload.ParseTemplate(w.target)
	if err != nil {
		return 0, err
	}

	file, err := os.Open(w.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open wordlist: %w", err)
	}
	defer file.Close()

	w.logger.WithFields(logrus.Fields{
		"wordlist": w.path,
		"target":   tmpl.String(),
	}).Info("Starting wordlist mode")

	return w.dispatchLines(ctx, tmpl, bufio.NewReader(file))
}

func (w *WordlistDriver) dispatchLines(ctx context.Context, tmpl *payload.Template, reader *bufio.Reader) (int, error) {
	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		line, readErr := reader.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return sent, fmt.Errorf("failed to read wordlist: %w", readErr)
		}
		for _, word := range splitLines(line) {
			if err := w.dispatcher.Dispatch(ctx, ModeWordlist, tmpl.Substitute(word)); err != nil {
				return sent, err
			}
			sent++
		}
		if readErr != nil {
			break
		}
	}

	w.logger.WithField("dispatched", sent).Info("Wordlist mode finished")
	return sent, nil
}

// splitLines applies universal newlines to one chunk read up to '\n': "\r\n" and a lone
// "\r" both end a line and are delivered as "\n". An unterminated tail is kept as-is.
func splitLines(chunk string) []string {
	if chunk == "" {
		return nil
	}
	chunk = strings.Replace(chunk, "\r\n", "\n", 1)
	if !strings.Contains(chunk, "\r") {
		return []string{chunk}
	}

	parts := strings.Split(chunk, "\r")
	lines := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			lines = append(lines, part+"\n")
		} else if part != "" {
			lines = append(lines, part)
		}
	}
	return lines
}
