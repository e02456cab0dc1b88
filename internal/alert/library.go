/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package alert

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"hdxplay/internal/codec"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Clip is one prompt loaded into memory.
type Clip struct {
	Kind codec.Kind
	Data []byte
	Path string
}

// Library holds the clips of a directory. Files are named after the type,
// e.g. "battery_low.mp3"; a language subdirectory ("en/battery_low.mp3")
// wins over the plain directory.
type Library struct {
	dir  string
	lang string
	log  zerolog.Logger

	mu    sync.RWMutex
	clips map[Type]Clip
}

func Open(dir, lang string, log zerolog.Logger) (*Library, error) {
	l := &Library{dir: dir, lang: lang, log: log, clips: make(map[Type]Clip)}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Library) dirs() []string {
	if l.lang == "" {
		return []string{l.dir}
	}
	return []string{filepath.Join(l.dir, l.lang), l.dir}
}

// Reload rescans the directory and replaces every clip.
func (l *Library) Reload() error {
	if _, err := os.Stat(l.dir); err != nil {
		return err
	}

	clips := make(map[Type]Clip)
	for _, t := range Types() {
		if c, ok := l.find(t); ok {
			clips[t] = c
		}
	}

	l.mu.Lock()
	l.clips = clips
	l.mu.Unlock()

	l.log.Debug().Str("dir", l.dir).Int("clips", len(clips)).Msg("alert clips loaded")
	return nil
}

func (l *Library) find(t Type) (Clip, bool) {
	for _, dir := range l.dirs() {
		for _, ext := range codec.Extensions() {
			path := filepath.Join(dir, t.String()+ext)
			kind, _ := codec.KindOf(path)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if len(data) == 0 {
				l.log.Warn().Str("path", path).Msg("empty alert clip ignored")
				continue
			}
			return Clip{Kind: kind, Data: data, Path: path}, true
		}
	}
	return Clip{}, false
}

func (l *Library) Clip(t Type) (Clip, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.clips[t]
	return c, ok
}

// Available lists the types that have a clip.
func (l *Library) Available() []Type {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Type
	for _, t := range Types() {
		if _, ok := l.clips[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Watch reloads the library whenever a clip file changes, until ctx ends.
func (l *Library) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, dir := range l.dirs() {
		if err := w.Add(dir); err != nil && dir == l.dir {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, err := codec.KindOf(ev.Name); err != nil {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := l.Reload(); err != nil {
				l.log.Warn().Err(err).Msg("alert reload")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.log.Warn().Err(err).Msg("alert watcher")
		}
	}
}
