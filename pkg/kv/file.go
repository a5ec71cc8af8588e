package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"peachcash/pkg/filedb"
)

// File is a log structured backend: every write or delete is one json line in a filedb,
// the latest line per key wins when the file is replayed at open
type File struct {
	mu   sync.RWMutex
	fdb  *filedb.Filedb
	data map[string][]byte
}

type fileRecord struct {
	Key     string `json:"k"`
	Val     []byte `json:"v,omitempty"`
	Deleted bool   `json:"d,omitempty"`
}

func OpenFile(path string) (f *File, err error) {
	defer func() {
		if err != nil {
			logger.Errorf("kv OpenFile %s failed with err:%s", path, err)
		}
	}()

	fdb, err := filedb.New(path)
	if err != nil {
		return
	}
	fdb.Fsync = true

	dropped, err := fdb.TruncateTorn()
	if err != nil {
		fdb.Close()
		return nil, err
	}
	if dropped > 0 {
		logger.Warningf("kv OpenFile %s dropped a torn last line of %d bytes", path, dropped)
	}

	f = &File{
		fdb:  fdb,
		data: map[string][]byte{},
	}

	lines := 0
	var decodeErr error
	err = fdb.ScanLines(func(line string) bool {
		var rec fileRecord
		if e := json.Unmarshal([]byte(line), &rec); e != nil {
			// torn tails are cut above, anything left undecodable is refused
			decodeErr = fmt.Errorf("%w: line %d: %v", ErrCorrupt, lines+1, e)
			return false
		}
		lines++
		if rec.Deleted {
			delete(f.data, rec.Key)
		} else {
			f.data[rec.Key] = rec.Val
		}
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		fdb.Close()
		return nil, err
	}

	logger.Debugf("kv OpenFile %s replayed %d lines, %d keys", path, lines, len(f.data))
	return
}

func (f *File) Name() string { return "file" }

func (f *File) Read(ctx context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (f *File) Write(ctx context.Context, key string, val []byte) error {
	return f.append(fileRecord{Key: key, Val: val})
}

func (f *File) Remove(ctx context.Context, key string) error {
	return f.append(fileRecord{Key: key, Deleted: true})
}

func (f *File) append(rec fileRecord) (err error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// memory only changes once the line is on disk
	err = f.fdb.WriteLine(string(b))
	if err != nil {
		return
	}
	if rec.Deleted {
		delete(f.data, rec.Key)
	} else {
		f.data[rec.Key] = append([]byte(nil), rec.Val...)
	}
	return
}

func (f *File) Close() error {
	return f.fdb.Close()
}
