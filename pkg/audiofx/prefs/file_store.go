package prefs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileStore persists buckets as TOML tables in a single file
type FileStore struct {
	logger *zap.SugaredLogger
	path   string

	lock    sync.Mutex
	buckets map[string]map[string]string

	// contents of our own last write, used to tell external edits apart
	lastWritten []byte

	changeConsumers []chan struct{}
}

// NewFileStore loads the store at path. A missing file yields an empty store.
func NewFileStore(logger *zap.SugaredLogger, path string) (*FileStore, error) {
	logger = logger.Named("prefs")

	s := &FileStore{
		logger:  logger,
		path:    path,
		buckets: make(map[string]map[string]string),
	}

	if err := s.Reload(); err != nil {
		logger.Warnw("Failed to load preferences file", "path", path, "error", err)
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	logger.Debugw("Created file store instance", "path", path)

	return s, nil
}

// Reload replaces the in-memory state with the file's contents
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	buckets, err := decode(data)
	if err != nil {
		return err
	}

	s.lock.Lock()
	s.buckets = buckets
	s.lock.Unlock()

	return nil
}

func decode(data []byte) (map[string]map[string]string, error) {
	buckets := make(map[string]map[string]string)

	if _, err := toml.Decode(string(data), &buckets); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}

	return buckets, nil
}

func (s *FileStore) GetString(bucket, key, def string) string {
	s.lock.Lock()
	defer s.lock.Unlock()

	return lookup(s.buckets, bucket, key, def)
}

func (s *FileStore) PutString(bucket, key, value string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	put(s.buckets, bucket, key, value)
}

func (s *FileStore) HasBucket(bucket string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, ok := s.buckets[bucket]
	return ok
}

func (s *FileStore) Clear(bucket string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.buckets, bucket)
}

// Commit writes the whole store to disk, replacing the file atomically
func (s *FileStore) Commit() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	buf := &bytes.Buffer{}
	if err := toml.NewEncoder(buf).Encode(s.buckets); err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	s.lastWritten = buf.Bytes()

	return nil
}

// SubscribeToChanges returns a channel that receives a value every time the
// file was changed by someone other than this store
func (s *FileStore) SubscribeToChanges() <-chan struct{} {
	s.lock.Lock()
	defer s.lock.Unlock()

	c := make(chan struct{}, 1)
	s.changeConsumers = append(s.changeConsumers, c)

	return c
}

// Watch reloads the store whenever the file is written externally, until ctx is done
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	// watch the directory, renames replace the inode we'd otherwise be watching
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}

				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				s.onFileChanged()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warnw("Preferences watcher error", "error", err)
			}
		}
	}()

	return nil
}

func (s *FileStore) onFileChanged() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}

	s.lock.Lock()
	own := bytes.Equal(data, s.lastWritten)
	s.lock.Unlock()

	if own {
		return
	}

	buckets, err := decode(data)
	if err != nil {
		s.logger.Warnw("Ignoring unreadable preferences file", "error", err)
		return
	}

	s.lock.Lock()
	s.buckets = buckets
	consumers := s.changeConsumers
	s.lock.Unlock()

	s.logger.Info("Preferences file changed externally, reloaded")

	for _, consumer := range consumers {
		select {
		case consumer <- struct{}{}:
		default:
		}
	}
}
