package io

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadPathList reads a text file listing one path per line. Blank lines are skipped.
func ReadPathList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	paths, err := ParsePathList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: no paths listed", path)
	}
	return paths, nil
}

// ParsePathList returns the non-blank, trimmed lines of r.
func ParsePathList(r io.Reader) ([]string, error) {
	var paths []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		paths = append(paths, line)
	}
	return paths, scanner.Err()
}
