// Package seeds reads the newline-delimited seed URL list.
package seeds

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadFile returns the seed URLs in path. Blank lines and lines starting
// with # are skipped.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seeds: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return Read(f)
}

// Read is ReadFile over an arbitrary reader.
func Read(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read seeds: %w", err)
	}
	return urls, nil
}
