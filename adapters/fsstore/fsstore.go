// Package fsstore implements kv.WatchStore on a local directory. Processes
// sharing the directory see each other's changes through fsnotify, which
// makes it a storage bus backend for contexts running on one host.
package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hashgraph/hedera-wallet-connect-sub000/core/bus"
	"github.com/hashgraph/hedera-wallet-connect-sub000/ports/kv"
)

const tmpDirName = ".tmp"

// DefaultLinger keeps storage bus messages on disk long enough for watchers
// to read them after the change notification.
const DefaultLinger = time.Second

type Options struct {
	Dir string
	Log *slog.Logger
}

// Store keeps one file per key. Writes go to a temporary file first and are
// renamed into place, so readers never see partial entries.
type Store struct {
	dir    string
	tmpDir string
	log    *slog.Logger
}

type record struct {
	Entry     kv.Entry  `json:"entry"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("fsstore: dir is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Store{
		dir:    opts.Dir,
		tmpDir: filepath.Join(opts.Dir, tmpDirName),
		log:    log.With(slog.String("kv", "fs"), slog.String("dir", opts.Dir)),
	}
	if err := os.MkdirAll(s.tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: prepare directory %q: %w", opts.Dir, err)
	}
	return s, nil
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, ".") {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *Store) Put(_ context.Context, key string, entry kv.Entry, opts kv.PutOptions) error {
	if !validKey(key) {
		return kv.ErrInvalidKey
	}
	rec := record{Entry: entry}
	if opts.TTL > 0 {
		rec.ExpiresAt = time.Now().Add(opts.TTL)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.tmpDir, "entry-*")
	if err != nil {
		return fmt.Errorf("fsstore: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsstore: write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsstore: sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fsstore: close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("fsstore: rename %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(_ context.Context, key string) (kv.Entry, error) {
	if !validKey(key) {
		return kv.Entry{}, kv.ErrInvalidKey
	}
	rec, err := s.read(key)
	if err != nil {
		return kv.Entry{}, err
	}
	if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		_ = os.Remove(s.path(key))
		return kv.Entry{}, kv.ErrNotFound
	}
	return rec.Entry, nil
}

func (s *Store) read(key string) (rec record, err error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rec, kv.ErrNotFound
		}
		return rec, fmt.Errorf("fsstore: read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("fsstore: decode %s: %w", key, err)
	}
	return rec, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return kv.ErrInvalidKey
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fsstore: delete %s: %w", key, err)
	}
	return nil
}

// Watch reports changes to keys starting with prefix. Entries are read when
// the notification arrives; an entry removed before that is not reported as
// a put.
func (s *Store) Watch(ctx context.Context, prefix string, fn kv.WatchFunc) (kv.Subscription, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsstore: create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("fsstore: watch %q: %w", s.dir, err)
	}

	w := &watch{
		s:       s,
		watcher: watcher,
		prefix:  prefix,
		fn:      fn,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	context.AfterFunc(ctx, func() {
		_ = w.Unsubscribe()
	})
	return w, nil
}

type watch struct {
	s       *Store
	watcher *fsnotify.Watcher
	prefix  string
	fn      kv.WatchFunc
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (w *watch) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.s.log.Warn("watch error", slog.Any("error", err))
		}
	}
}

func (w *watch) handle(ev fsnotify.Event) {
	key := filepath.Base(ev.Name)
	if !validKey(key) || !strings.HasPrefix(key, w.prefix) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		rec, err := w.s.read(key)
		if errors.Is(err, kv.ErrNotFound) {
			return
		}
		if err != nil {
			w.s.log.Warn("failed to read entry", slog.String("key", key), slog.Any("error", err))
			return
		}
		w.fn(kv.Event{Key: key, Op: kv.OpPut, Entry: rec.Entry})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.fn(kv.Event{Key: key, Op: kv.OpDelete})
	}
}

func (w *watch) Unsubscribe() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

// StorageStrategy runs the storage bus over a directory store. A linger of
// zero is raised to DefaultLinger.
func StorageStrategy(opts Options, channel string, linger time.Duration) bus.Strategy {
	if linger <= 0 {
		linger = DefaultLinger
	}
	return bus.Strategy{
		Name: "fs",
		Open: func(context.Context) (bus.Bus, error) {
			store, err := New(opts)
			if err != nil {
				return nil, err
			}
			return bus.NewStorageBus(bus.StorageOptions{
				Store:   store,
				Channel: channel,
				Linger:  linger,
				Log:     opts.Log,
			})
		},
	}
}

var _ kv.WatchStore = (*Store)(nil)
