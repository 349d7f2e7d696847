package syscalldb

import (
	"bufio"
	"os"
	"sort"
	"strings"
)

// CacheEntry is the two-line on-disk representation of a profile's resolved
// call set: the program's own syscalls on the first line, the executor's on
// the second, both space-separated and sorted for a stable diff.
type CacheEntry struct {
	ProgramCalls  []string
	ExecutorCalls []string
}

// WriteCache writes entry to path, overwriting any existing file.
func WriteCache(path string, entry CacheEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeSortedLine(w, entry.ProgramCalls); err != nil {
		return err
	}
	if err := writeSortedLine(w, entry.ExecutorCalls); err != nil {
		return err
	}
	return w.Flush()
}

func writeSortedLine(w *bufio.Writer, calls []string) error {
	sorted := append([]string{}, calls...)
	sort.Strings(sorted)
	_, err := w.WriteString(strings.Join(sorted, " ") + "\n")
	return err
}

// ReadCache reads a CacheEntry previously written by WriteCache. A missing
// file is reported via the os.IsNotExist-compatible error from os.Open.
func ReadCache(path string) (CacheEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return CacheEntry{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return CacheEntry{}, err
	}

	var entry CacheEntry
	if len(lines) > 0 && lines[0] != "" {
		entry.ProgramCalls = strings.Fields(lines[0])
	}
	if len(lines) > 1 && lines[1] != "" {
		entry.ExecutorCalls = strings.Fields(lines[1])
	}
	return entry, nil
}
