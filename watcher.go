package main

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// frameExtensions are the capture formats the watcher picks up.
var frameExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// ErrNoFrame is returned while no capture has landed yet.
var ErrNoFrame = errors.New("no frame captured yet")

// FrameWatcher watches a capture directory and keeps the newest stable
// image as the bridge's next frame. It satisfies bridge.FrameSource.
type FrameWatcher struct {
	watcher     *fsnotify.Watcher
	dir         string
	removeAfter bool

	mu          sync.Mutex
	debounceMap map[string]*time.Timer // path -> debounce timer
	latest      []byte
	running     bool
}

// NewFrameWatcher creates a watcher for the given directory, creating
// it if needed.
func NewFrameWatcher(dir string, removeAfter bool) (*FrameWatcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FrameWatcher{
		watcher:     watcher,
		dir:         dir,
		removeAfter: removeAfter,
		debounceMap: make(map[string]*time.Timer),
	}, nil
}

// Start begins watching the capture directory.
func (fw *FrameWatcher) Start() error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = true
	fw.mu.Unlock()

	if err := fw.watcher.Add(fw.dir); err != nil {
		return err
	}
	log.Printf("Watching capture directory: %s", fw.dir)

	go fw.handleEvents()
	return nil
}

// Stop stops watching.
func (fw *FrameWatcher) Stop() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.running = false

	// Cancel all debounce timers
	for _, timer := range fw.debounceMap {
		timer.Stop()
	}
	fw.debounceMap = make(map[string]*time.Timer)

	if fw.watcher != nil {
		fw.watcher.Close()
	}
}

// NextFrame returns the newest captured frame.
func (fw *FrameWatcher) NextFrame() ([]byte, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.latest == nil {
		return nil, ErrNoFrame
	}
	return fw.latest, nil
}

// handleEvents processes fsnotify events.
func (fw *FrameWatcher) handleEvents() {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			// Only handle Create and Write events
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// Skip directories
			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}

			// Skip hidden files
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}

			if !frameExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}

			// Debounce: wait for the capture to finish writing
			fw.debounceFile(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

// debounceFile delays processing until the file is stable.
func (fw *FrameWatcher) debounceFile(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if timer, ok := fw.debounceMap[path]; ok {
		timer.Stop()
	}

	fw.debounceMap[path] = time.AfterFunc(500*time.Millisecond, func() {
		fw.mu.Lock()
		delete(fw.debounceMap, path)
		fw.mu.Unlock()

		fw.loadFrame(path)
	})
}

// loadFrame reads a capture into the latest-frame slot.
func (fw *FrameWatcher) loadFrame(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Failed to read capture %s: %v", path, err)
		return
	}
	if len(data) == 0 {
		return
	}

	fw.mu.Lock()
	fw.latest = data
	fw.mu.Unlock()

	log.Printf("New frame ready: %s (%d bytes)", filepath.Base(path), len(data))

	if fw.removeAfter {
		if err := os.Remove(path); err != nil {
			log.Printf("Failed to delete consumed capture %s: %v", path, err)
		}
	}
}
