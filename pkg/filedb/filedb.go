// Package filedb is a simple database based on files: one record per line, append only.
package filedb

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nxadm/tail"
)

var ErrClosed = errors.New("filedb closed")

type Filedb struct {
	File     *os.File
	FilePath string

	// Fsync makes every WriteLine durable before returning
	Fsync bool

	mu sync.Mutex
}

func New(filePath string) (fdb *Filedb, err error) {
	fdb = &Filedb{
		FilePath: filePath,
	}
	err = fdb.Open()

	return
}

func (f *Filedb) Open() (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.File != nil {
		return
	}

	err = os.MkdirAll(filepath.Dir(f.FilePath), 0755)
	if err != nil {
		return
	}

	f.File, err = os.OpenFile(f.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	return
}

func (f *Filedb) Close() (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.File == nil {
		return
	}

	err = f.File.Close()
	f.File = nil

	return
}

// WriteLine appends s followed by a newline, s must not contain one
func (f *Filedb) WriteLine(s string) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.File == nil {
		return ErrClosed
	}

	_, err = f.File.WriteString(s + "\n")
	if err != nil {
		return
	}

	if f.Fsync {
		err = f.File.Sync()
	}
	return
}

// ReadLastLine reads the last non-empty line of the file
func (f *Filedb) ReadLastLine() (s string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.File == nil {
		return "", ErrClosed
	}

	stat, err := f.File.Stat()
	if err != nil {
		return
	}

	// Lines have no fixed size, so read backwards in growing windows until a full line is found
	size := stat.Size()
	window := int64(1024)
	for {
		if window > size {
			window = size
		}
		b := make([]byte, window)
		_, err = f.File.ReadAt(b, size-window)
		if err != nil && err != io.EOF {
			return
		}
		err = nil

		txt := strings.TrimRight(string(b), " \n")
		idx := strings.LastIndexByte(txt, '\n')
		if idx >= 0 {
			return txt[idx+1:], nil
		}
		if window == size {
			return strings.TrimSpace(txt), nil
		}
		window *= 4
	}
}

// TruncateTorn cuts a trailing line that has no newline, what an interrupted WriteLine leaves behind.
// It returns the number of bytes dropped.
func (f *Filedb) TruncateTorn() (dropped int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.File == nil {
		return 0, ErrClosed
	}

	stat, err := f.File.Stat()
	if err != nil {
		return
	}
	size := stat.Size()
	if size == 0 {
		return
	}

	keep := int64(0)
	window := int64(1024)
	for {
		if window > size {
			window = size
		}
		b := make([]byte, window)
		_, err = f.File.ReadAt(b, size-window)
		if err != nil && err != io.EOF {
			return
		}
		err = nil

		if b[len(b)-1] == '\n' {
			return 0, nil
		}
		if idx := bytes.LastIndexByte(b, '\n'); idx >= 0 {
			keep = size - window + int64(idx) + 1
			break
		}
		if window == size {
			break
		}
		window *= 4
	}

	err = f.File.Truncate(keep)
	if err != nil {
		return
	}
	if f.Fsync {
		err = f.File.Sync()
	}
	return size - keep, err
}

// ReadFirstLine reads the first non-empty line of the file
func (f *Filedb) ReadFirstLine() (s string, err error) {
	err = f.ScanLines(func(line string) bool {
		s = line
		return false
	})
	if err == nil && s == "" {
		err = io.EOF
	}
	return
}

// ScanLines calls fn for every non-empty line from the start of the file until fn returns false
func (f *Filedb) ScanLines(fn func(line string) bool) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.File == nil {
		return ErrClosed
	}

	// a separate reader keeps the append offset of f.File untouched
	r, err := os.Open(f.FilePath)
	if err != nil {
		return
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !fn(line) {
			return nil
		}
	}

	return scanner.Err()
}

// Tailf follows the file from the beginning and sends every complete line to ch until ctx is done
func (f *Filedb) Tailf(ctx context.Context, ch chan<- string) (err error) {
	ta, err := tail.TailFile(f.FilePath, tail.Config{
		Follow:        true,
		ReOpen:        true,
		CompleteLines: true,
		Logger:        tail.DiscardingLogger,
	})
	if err != nil {
		return
	}
	defer ta.Cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = ta.Stop()
			return ctx.Err()
		case line, ok := <-ta.Lines:
			if !ok {
				return ta.Err()
			}
			if line.Err != nil {
				// a broken line stops the follower, skipping it would reorder the data
				_ = ta.Stop()
				return line.Err
			}
			if strings.TrimSpace(line.Text) == "" {
				continue
			}
			select {
			case ch <- line.Text:
			case <-ctx.Done():
				_ = ta.Stop()
				return ctx.Err()
			}
		}
	}
}
