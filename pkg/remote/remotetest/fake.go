// Package remotetest provides an in-memory cluster for tests.
package remotetest

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sync"

	"contaminer/pkg/errutil"
)

// Fake implements remote.Channel over in-memory files and canned command
// outputs. Unknown commands succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	files     map[string][]byte
	outputs   map[string]string
	failures  map[string]error
	commands  []string
	downloads []string
}

func New() *Fake {
	return &Fake{
		files:    make(map[string][]byte),
		outputs:  make(map[string]string),
		failures: make(map[string]error),
	}
}

// SetCommand makes command print out.
func (f *Fake) SetCommand(command, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[command] = out
}

// SetFile stores a remote file.
func (f *Fake) SetFile(remotePath string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[remotePath] = content
}

// Fail makes every operation on key (a command or a remote path) return err.
// A nil err clears the failure.
func (f *Fake) Fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, key)
		return
	}
	f.failures[key] = err
}

func (f *Fake) File(remotePath string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[remotePath]
	return b, ok
}

func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *Fake) Downloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.downloads...)
}

func (f *Fake) Execute(_ context.Context, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	if err := f.failures[command]; err != nil {
		return "", err
	}
	return f.outputs[command], nil
}

func (f *Fake) ReadFile(_ context.Context, remotePath string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[remotePath]; err != nil {
		return nil, err
	}
	b, ok := f.files[remotePath]
	if !ok {
		return nil, errutil.RemoteExecution("open "+remotePath, os.ErrNotExist)
	}
	return append([]byte(nil), b...), nil
}

func (f *Fake) WriteFile(_ context.Context, remotePath string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[remotePath]; err != nil {
		return err
	}
	f.files[remotePath] = append([]byte(nil), content...)
	return nil
}

func (f *Fake) UploadFile(_ context.Context, localPath, remoteDir string) (string, error) {
	remotePath := path.Join(remoteDir, filepath.Base(localPath))

	f.mu.Lock()
	err := f.failures[remotePath]
	f.mu.Unlock()
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[remotePath] = content
	return remotePath, nil
}

func (f *Fake) DownloadFile(_ context.Context, remotePath, localPath string) error {
	f.mu.Lock()
	err := f.failures[remotePath]
	content, ok := f.files[remotePath]
	f.downloads = append(f.downloads, remotePath)
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return errutil.RemoteExecution("open "+remotePath, os.ErrNotExist)
	}
	return os.WriteFile(localPath, content, 0o644)
}

// ErrUnreachable is a ready-made transport failure.
var ErrUnreachable = errutil.RemoteUnavailable("dial cluster", errors.New("connection refused"))
