package mailstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/auditpipe/mail-audit/model"
)

// DirStore reads messages from a filesystem mail store. A section label
// resolves under the root either to a directory of .eml files or to a
// .mbox file named after the label.
type DirStore struct {
	root   string
	logger *slog.Logger
}

func NewDirStore(root string, logger *slog.Logger) (*DirStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("mail root is empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("mail root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mail root %s is not a directory", root)
	}
	return &DirStore{root: root, logger: logger}, nil
}

// Resolve maps a section label to its backing directory or mbox file.
// Labels may name nested paths using "/" separators.
func (s *DirStore) Resolve(section string) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(section))

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path, nil
	}
	if info, err := os.Stat(path + ".mbox"); err == nil && !info.IsDir() {
		return path + ".mbox", nil
	}
	return "", fmt.Errorf("%w: %s under %s", ErrSectionNotFound, section, s.root)
}

func (s *DirStore) Messages(ctx context.Context, section string) ([]model.RawMessage, error) {
	path, err := s.Resolve(section)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ".mbox") {
		return s.readMbox(ctx, section, path)
	}
	return s.readDir(ctx, section, path)
}

// readDir enumerates the .eml files of a section directory in the
// directory's native (lexical) order, without descending into
// sub-folders.
func (s *DirStore) readDir(ctx context.Context, section, dir string) ([]model.RawMessage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read section %s: %w", section, err)
	}

	var messages []model.RawMessage
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return messages, err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".eml") {
			continue
		}

		filePath := filepath.Join(dir, entry.Name())
		msg, err := s.readFile(filePath)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping unreadable message", "section", section, "file", filePath, "err", err)
			}
			continue
		}

		msg.Section = section
		msg.FolderPath = dir
		msg.BodyRef = filePath
		if msg.ID == "" {
			msg.ID = entry.Name()
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

func (s *DirStore) readFile(path string) (model.RawMessage, error) {
	file, err := os.Open(path)
	if err != nil {
		return model.RawMessage{}, err
	}
	defer file.Close()
	return parseMessage(file)
}

func (s *DirStore) readMbox(ctx context.Context, section, path string) ([]model.RawMessage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox %s: %w", path, err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	var messages []model.RawMessage
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return messages, err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return messages, nil
			}
			return messages, fmt.Errorf("mbox %s message %d: %w", path, idx, err)
		}

		msg, err := parseMessage(msgReader)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping undecodable mbox message", "section", section, "index", idx, "err", err)
			}
			continue
		}

		msg.Section = section
		msg.FolderPath = path
		msg.BodyRef = path
		if msg.ID == "" {
			msg.ID = fmt.Sprintf("%s#%d", filepath.Base(path), idx)
		}
		messages = append(messages, msg)
	}
}
