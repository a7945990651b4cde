// Completion: 100% - Platform-specific module complete
//go:build linux
// +build linux

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const watchMask = unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_CREATE

// FileWatcher watches the directories of the listings rather than the files,
// so editors that save by renaming a temporary file are noticed too
type FileWatcher struct {
	fd          int
	dirs        map[int]string      // watch descriptor -> directory
	files       map[string]struct{} // absolute paths of interest
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init failed: %v", err)
	}
	return &FileWatcher{
		fd:          fd,
		dirs:        make(map[int]string),
		files:       make(map[string]struct{}),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(absPath)

	wd, err := unix.InotifyAddWatch(fw.fd, dir, watchMask)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %v", dir, err)
	}

	fw.mu.Lock()
	fw.dirs[wd] = dir
	fw.files[absPath] = struct{}{}
	fw.mu.Unlock()
	return nil
}

// Watch delivers change callbacks until ctx is cancelled
func (fw *FileWatcher) Watch(ctx context.Context) {
	buf := make([]byte, (unix.SizeofInotifyEvent+256)*8)

	for ctx.Err() == nil {
		n, err := unix.Read(fw.fd, buf)
		if err != nil {
			if err != unix.EAGAIN && VerboseMode {
				fmt.Fprintf(os.Stderr, "Error reading inotify events: %v\n", err)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for offset := 0; offset+unix.SizeofInotifyEvent <= n; {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			nameBytes := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+int(event.Len)]
			offset += unix.SizeofInotifyEvent + int(event.Len)

			if event.Mask&watchMask == 0 {
				continue
			}
			name := unix.ByteSliceToString(nameBytes)

			fw.mu.Lock()
			path := filepath.Join(fw.dirs[int(event.Wd)], name)
			_, wanted := fw.files[path]
			fw.mu.Unlock()

			if wanted {
				fw.debouncedCallback(path)
			}
		}
	}
}

func (fw *FileWatcher) debouncedCallback(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if timer, exists := fw.debounceMap[path]; exists {
		timer.Stop()
	}
	fw.debounceMap[path] = time.AfterFunc(300*time.Millisecond, func() {
		fw.onChange(path)
		fw.mu.Lock()
		delete(fw.debounceMap, path)
		fw.mu.Unlock()
	})
}

func (fw *FileWatcher) Close() error {
	fw.mu.Lock()
	for _, timer := range fw.debounceMap {
		timer.Stop()
	}
	fw.mu.Unlock()
	return unix.Close(fw.fd)
}
