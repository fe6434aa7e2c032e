package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nanooro/dagnerai/domain"
)

// FileArchive keeps one JSON file per session holding every transcript
// archived for it.
type FileArchive struct {
	dir string
	mu  sync.Mutex
}

func NewFileArchive(dir string) (*FileArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}
	return &FileArchive{dir: dir}, nil
}

func (a *FileArchive) Save(_ context.Context, t domain.Transcript) error {
	path, err := a.path(t.SessionID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	history, err := readFile(path)
	if err != nil {
		return err
	}
	history = append(history, t)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating file: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(history); err != nil {
		return fmt.Errorf("error encoding transcript: %w", err)
	}
	return nil
}

func (a *FileArchive) Load(_ context.Context, sessionID string) ([]domain.Transcript, error) {
	path, err := a.path(sessionID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return readFile(path)
}

func (a *FileArchive) path(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(a.dir, "transcript_"+sessionID+".json"), nil
}

func readFile(path string) ([]domain.Transcript, error) {
	history := []domain.Transcript{}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return history, nil
		}
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&history); err != nil {
		return nil, fmt.Errorf("error decoding JSON: %w", err)
	}
	return history, nil
}
