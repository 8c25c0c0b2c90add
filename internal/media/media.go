// Package media хранит вложения постов на локальном диске.
// Ядро работает только с именами файлов; байты видит лишь этот пакет.
package media

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// URLPrefix - путь, по которому вложения раздаются клиентам.
const URLPrefix = "/uploads/"

var ErrInvalidName = errors.New("invalid media name")

// Store сохраняет и удаляет файлы вложений в каталоге Dir.
type Store struct {
	Dir string
	now func() time.Time
}

// NewStore создаёт каталог, если его нет.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: failed to create upload dir: %w", err)
	}
	return &Store{Dir: dir, now: time.Now}, nil
}

// Save записывает содержимое под сгенерированным именем и возвращает это имя.
func (s *Store) Save(r io.Reader, originalName string) (string, error) {
	name := s.generateName(originalName)
	f, err := os.OpenFile(filepath.Join(s.Dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("media: failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("media: failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("media: failed to close file: %w", err)
	}
	return name, nil
}

// Release удаляет файл вложения. Пустое имя - no-op.
func (s *Store) Release(name string) error {
	if name == "" {
		return nil
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := os.Remove(filepath.Join(s.Dir, name)); err != nil {
		return fmt.Errorf("media: failed to remove %s: %w", name, err)
	}
	return nil
}

// Handler раздаёт сохранённые файлы под URLPrefix.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(URLPrefix, http.FileServer(http.Dir(s.Dir)))
}

// generateName: <unix-millis>-<uuid><ext>
func (s *Store) generateName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if len(ext) > 10 {
		ext = ""
	}
	return fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString(), ext)
}
