package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// File stores the credential in a file and watches its directory so a login or
// logout from another process is noticed.
type File struct {
	path   string
	logger *slog.Logger
}

func NewFile(path string, logger *slog.Logger) *File {
	return &File{
		path:   filepath.Clean(path),
		logger: logger.With("module", "credentials", "store", "file"),
	}
}

func (f *File) Get(context.Context) (string, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("failed to read credential file: %w", err)
	}

	credential := strings.TrimSpace(string(data))

	return credential, credential != "", nil
}

func (f *File) Set(_ context.Context, credential string) error {
	if credential == "" {
		return ErrEmptyCredential
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to create credential file: %w", err)
	}

	if _, err := tmp.WriteString(credential + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write credential file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write credential file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace credential file: %w", err)
	}

	return nil
}

func (f *File) Clear(context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}

	return nil
}

// Watch watches the credential's directory, since the file itself is replaced
// on every write and may not exist yet.
func (f *File) Watch(ctx context.Context) (<-chan Change, error) {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()

		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	last, _, _ := f.Get(ctx)
	ch := make(chan Change, watchBuffer)

	go func() {
		defer close(ch)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if filepath.Clean(event.Name) != f.path {
					continue
				}

				current, _, err := f.Get(ctx)
				if err != nil {
					f.logger.WarnContext(ctx, "Failed to read credential after change", "error", err)

					continue
				}

				if current == last {
					continue
				}

				last = current
				push(ch, Change{Credential: current, Present: current != ""})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}

				f.logger.WarnContext(ctx, "Credential watcher error", "error", err)
			}
		}
	}()

	return ch, nil
}
