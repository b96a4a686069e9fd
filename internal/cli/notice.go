package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/docchat/internal/reconcile"
	"gopkg.in/yaml.v3"
)

const noticeFile = "notice.yaml"

// pendingNotice is a background refresh failure kept until the next command.
type pendingNotice struct {
	Scope    string    `yaml:"scope"`
	Attempts int       `yaml:"attempts"`
	Error    string    `yaml:"error"`
	At       time.Time `yaml:"at"`
}

// saveNotice keeps n in dir for the next command to report.
func saveNotice(dir string, n reconcile.Notice) error {
	p := pendingNotice{Scope: n.Scope, Attempts: n.Attempts, At: n.At}
	if n.Err != nil {
		p.Error = n.Err.Error()
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, noticeFile), data, 0o600); err != nil {
		return fmt.Errorf("write notice: %w", err)
	}
	return nil
}

// takeNotice returns and removes the notice saved in dir, if any.
func takeNotice(dir string) (reconcile.Notice, bool, error) {
	path := filepath.Join(dir, noticeFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return reconcile.Notice{}, false, nil
	}
	if err != nil {
		return reconcile.Notice{}, false, fmt.Errorf("read notice: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return reconcile.Notice{}, false, fmt.Errorf("remove notice: %w", err)
	}

	var p pendingNotice
	if err := yaml.Unmarshal(data, &p); err != nil {
		return reconcile.Notice{}, false, fmt.Errorf("decode notice: %w", err)
	}
	n := reconcile.Notice{Scope: p.Scope, Attempts: p.Attempts, At: p.At}
	if p.Error != "" {
		n.Err = errors.New(p.Error)
	}
	return n, true, nil
}
