// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bureau-foundation/parley/lib/clock"
	"github.com/bureau-foundation/parley/lib/sessionlog"
)

// DefaultPollInterval is the polling fallback's period.
const DefaultPollInterval = time.Second

// Options configures [Follow].
type Options struct {
	// Offset is the byte position to start reading from. Zero reads
	// the whole file.
	Offset int64

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Follow calls fn with every complete line appended to path, starting
// at options.Offset, until ctx is done. Blank lines are skipped. If the
// file shrinks it is assumed to have been replaced and is read again
// from the start. Follow returns nil when ctx ends and an error when
// watching cannot start or a read fails.
func Follow(ctx context.Context, path string, options Options, fn func(line []byte)) error {
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	follower := &follower{path: path, offset: options.Offset, fn: fn, logger: options.Logger}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		options.Logger.Warn("file notifications unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			options.Logger.Warn("watching directory failed, polling only",
				"directory", filepath.Dir(path),
				"error", err,
			)
		}
	}

	ticker := options.Clock.NewTicker(options.PollInterval)
	defer ticker.Stop()

	if err := follower.drain(); err != nil {
		return err
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events, errs = watcher.Events, watcher.Errors
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			options.Logger.Warn("file notification error", "error", err)
			continue
		case <-ticker.C:
		}
		if err := follower.drain(); err != nil {
			return err
		}
	}
}

// FollowEvents is [Follow] for a session event log: each line is
// decoded, and lines that do not decode are skipped and logged.
func FollowEvents(ctx context.Context, path string, options Options, fn func(sessionlog.Event)) error {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return Follow(ctx, path, options, func(line []byte) {
		event, ok := sessionlog.DecodeEvent(line)
		if !ok {
			logger.Warn("skipped unreadable session event", "path", path, "bytes", len(line))
			return
		}
		fn(event)
	})
}

type follower struct {
	path   string
	offset int64
	fn     func(line []byte)
	logger *slog.Logger
}

// drain delivers every complete line past the offset. A trailing
// partial line is left for the next call.
func (follower *follower) drain() error {
	file, err := os.Open(follower.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("watch: opening %s: %w", follower.path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("watch: stat %s: %w", follower.path, err)
	}
	if info.Size() < follower.offset {
		follower.logger.Info("file shrank, reading from the start",
			"path", follower.path,
			"size", info.Size(),
			"offset", follower.offset,
		)
		follower.offset = 0
	}
	if info.Size() == follower.offset {
		return nil
	}

	data := make([]byte, info.Size()-follower.offset)
	read, err := file.ReadAt(data, follower.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("watch: reading %s: %w", follower.path, err)
	}
	data = data[:read]

	complete := bytes.LastIndexByte(data, '\n')
	if complete < 0 {
		return nil
	}
	for _, line := range bytes.Split(data[:complete], []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) > 0 {
			follower.fn(line)
		}
	}
	follower.offset += int64(complete + 1)
	return nil
}
