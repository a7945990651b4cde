//go:build darwin
// +build darwin

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const vnodeFlags = unix.NOTE_WRITE | unix.NOTE_ATTRIB | unix.NOTE_DELETE | unix.NOTE_RENAME

type FileWatcher struct {
	kq          int
	fds         map[int]string // open descriptor -> absolute path
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue failed: %v", err)
	}
	return &FileWatcher{
		kq:          kq,
		fds:         make(map[int]string),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	fd, err := unix.Open(absPath, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %v", absPath, err)
	}

	event := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: vnodeFlags,
	}
	if _, err := unix.Kevent(fw.kq, []unix.Kevent_t{event}, nil, nil); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to add kevent for %s: %v", absPath, err)
	}

	fw.mu.Lock()
	fw.fds[fd] = absPath
	fw.mu.Unlock()
	return nil
}

// rewatch replaces the descriptor of a file that was deleted or renamed
// over, which is how most editors save
func (fw *FileWatcher) rewatch(fd int) {
	fw.mu.Lock()
	path := fw.fds[fd]
	delete(fw.fds, fd)
	fw.mu.Unlock()
	unix.Close(fd)

	for range 10 {
		if err := fw.AddFile(path); err == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "Lost track of %s\n", path)
	}
}

// Watch delivers change callbacks until ctx is cancelled
func (fw *FileWatcher) Watch(ctx context.Context) {
	events := make([]unix.Kevent_t, 10)
	timeout := unix.NsecToTimespec(int64(200 * time.Millisecond))

	for ctx.Err() == nil {
		n, err := unix.Kevent(fw.kq, nil, events, &timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "Error reading kevent: %v\n", err)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, event := range events[:n] {
			fd := int(event.Ident)
			fw.mu.Lock()
			path := fw.fds[fd]
			fw.mu.Unlock()
			if path == "" {
				continue
			}
			if event.Fflags&(unix.NOTE_DELETE|unix.NOTE_RENAME) != 0 {
				fw.rewatch(fd)
			}
			fw.debouncedCallback(path)
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
	defer fw.mu.Unlock()

	for _, timer := range fw.debounceMap {
		timer.Stop()
	}
	for fd := range fw.fds {
		unix.Close(fd)
	}
	return unix.Close(fw.kq)
}
