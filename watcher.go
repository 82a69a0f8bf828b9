package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"

	"qayd/models"
	"qayd/pkg/ingest"
)

// watchInbox ingests CSV/XLSX batches dropped into a directory, giving
// operators a bulk path that skips the HTTP upload. Each file gets its own
// upload session, visible through the same status endpoint, and is moved to
// processed/ or failed/ when done.
func watchInbox(dir string) {
	if err := os.MkdirAll(filepath.Join(dir, "processed"), 0755); err != nil {
		zlog.Error().Err(err).Str("dir", dir).Msg("could not prepare inbox")
		return
	}
	if err := os.MkdirAll(filepath.Join(dir, "failed"), 0755); err != nil {
		zlog.Error().Err(err).Str("dir", dir).Msg("could not prepare inbox")
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zlog.Error().Err(err).Msg("could not start inbox watcher")
		return
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		zlog.Error().Err(err).Str("dir", dir).Msg("could not watch inbox")
		return
	}
	zlog.Info().Str("dir", dir).Msg("watching ingestion inbox")

	// pick up files that were already waiting
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				ingestInboxFile(filepath.Join(dir, e.Name()))
			}
		}
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// each file gets its own goroutine so a large batch does not
			// block pickup of later drops
			go func(path string) {
				// give the writer a moment to finish the file
				time.Sleep(500 * time.Millisecond)
				ingestInboxFile(path)
			}(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zlog.Warn().Err(err).Msg("inbox watcher error")
		}
	}
}

func ingestInboxFile(path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".xlsx" {
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}
	name := filepath.Base(path)
	logger := zlog.With().Str("file", name).Logger()

	f, err := os.Open(path)
	if err != nil {
		logger.Error().Err(err).Msg("could not open inbox file")
		return
	}
	records, err := ingest.Parse(name, f)
	f.Close()
	if err != nil {
		logger.Error().Err(err).Msg("could not parse inbox file")
		moveInboxFile(path, "failed")
		return
	}

	orchestrator := ingest.NewOrchestrator(ingest.NewStore(db))
	sess, err := orchestrator.Begin(context.Background(), name, len(records), nil)
	if err != nil {
		logger.Error().Err(err).Msg("could not create session for inbox file")
		moveInboxFile(path, "failed")
		return
	}
	logger.Info().Str("session_id", sess.ID).Int("rows", len(records)).Msg("ingesting inbox file")
	orchestrator.Process(context.Background(), sess, records)

	if sess.Status == models.SessionFailed {
		moveInboxFile(path, "failed")
		return
	}
	moveInboxFile(path, "processed")
}

func moveInboxFile(path, subdir string) {
	dest := filepath.Join(filepath.Dir(path), subdir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		zlog.Warn().Err(err).Str("file", path).Msg("could not move inbox file")
	}
}
