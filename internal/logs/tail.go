package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// FileName is the log file written under paths.log_dir.
const FileName = "recap.log"

const defaultPollInterval = 250 * time.Millisecond

// TailOptions controls which lines Tail returns.
type TailOptions struct {
	// Limit caps the number of trailing lines; zero or less returns none and
	// only reports the end offset.
	Limit int
	// Match keeps only lines containing the substring.
	Match string
}

// TailResult holds the selected lines and the offset just past them.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail returns the last lines of path. A missing file yields an empty result.
func Tail(path string, opts TailOptions) (TailResult, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return TailResult{}, err
	}
	defer file.Close()

	var result TailResult
	if opts.Limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return result, fmt.Errorf("seek log file: %w", err)
		}
		result.Offset = offset
		return result, nil
	}

	ring := make([]string, opts.Limit)
	count, idx := 0, 0
	err = scanLines(file, func(line string) {
		if !matches(line, opts.Match) {
			return
		}
		ring[idx] = line
		idx = (idx + 1) % opts.Limit
		if count < opts.Limit {
			count++
		}
	})
	if err != nil {
		return result, err
	}
	if result.Offset, err = file.Seek(0, io.SeekCurrent); err != nil {
		return result, fmt.Errorf("determine log offset: %w", err)
	}

	result.Lines = make([]string, count)
	if count == opts.Limit {
		for i := range count {
			result.Lines[i] = ring[(idx+i)%opts.Limit]
		}
	} else {
		copy(result.Lines, ring[:count])
	}
	return result, nil
}

// ReadFrom returns the complete lines appended after offset. When the file
// shrank (rotation or truncation) reading restarts at the beginning.
func ReadFrom(path string, offset int64, match string) (TailResult, error) {
	result := TailResult{Offset: offset}
	file, err := openLog(path)
	if err != nil || file == nil {
		result.Offset = 0
		return result, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return result, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// partial trailing line stays unread until its newline arrives
			break
		}
		if err != nil {
			return result, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if matches(line, match) {
			result.Lines = append(result.Lines, line)
		}
	}
	result.Offset = offset
	return result, nil
}

// Follow polls path from offset and hands each new line to emit until ctx is
// done. Cancellation is not reported as an error.
func Follow(ctx context.Context, path string, offset int64, match string, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := ReadFrom(path, offset, match)
		if err != nil {
			return err
		}
		for _, line := range result.Lines {
			emit(line)
		}
		offset = result.Offset

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func openLog(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func scanLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read log file: %w", err)
	}
	return nil
}

func matches(line, match string) bool {
	return match == "" || strings.Contains(line, match)
}
