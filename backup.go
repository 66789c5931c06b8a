// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// pendingFile is a fully written temp file waiting to replace its target.
type pendingFile struct {
	tmp    string
	target string
}

// createTempSibling creates a temp file next to target so the final rename stays on one filesystem.
func createTempSibling(target string) (*os.File, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %w", ErrIO, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %w", ErrIO, err)
	}

	return f, nil
}

// finishTemp syncs and closes a written temp file.
func finishTemp(f *os.File) error {
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrIO, f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, f.Name(), err)
	}

	return nil
}

// discardPending removes temp files of an aborted write.
func discardPending(files []pendingFile) {
	for _, f := range files {
		_ = os.Remove(f.tmp)
	}
}

// commitPending moves temp files over their targets.
// Existing targets are moved to "<target>.bak" first; when any step fails,
// already replaced targets are restored from their backups.
// With keep == 0 backups are removed after success.
func commitPending(files []pendingFile, keep int) error {
	if keep < 0 {
		keep = 0
	}

	type done struct {
		target string
		backup string
	}

	committed := make([]done, 0, len(files))
	rollback := func(cause error) error {
		for i := len(committed) - 1; i >= 0; i-- {
			c := committed[i]
			if c.backup == "" {
				_ = os.Remove(c.target)
				continue
			}
			if err := rollbackFromBackup(c.target, c.backup); err != nil {
				cause = fmt.Errorf("%w (rollback failed: %w)", cause, err)
			}
		}

		discardPending(files)
		return cause
	}

	for _, f := range files {
		backupPath := ""
		if fileExists(f.target) {
			backupPath = f.target + ".bak"
			if err := prepareBackupSlot(backupPath, keep); err != nil {
				return rollback(err)
			}
			if err := os.Rename(f.target, backupPath); err != nil {
				return rollback(fmt.Errorf("%w: move %s to backup: %w", ErrIO, f.target, err))
			}
		}

		if err := os.Rename(f.tmp, f.target); err != nil {
			if backupPath != "" {
				if rbErr := rollbackFromBackup(f.target, backupPath); rbErr != nil {
					err = fmt.Errorf("%w (rollback failed: %w)", err, rbErr)
				}
			}

			return rollback(fmt.Errorf("%w: replace %s: %w", ErrIO, f.target, err))
		}

		committed = append(committed, done{target: f.target, backup: backupPath})
	}

	if keep == 0 {
		for _, c := range committed {
			if c.backup == "" {
				continue
			}
			if err := removeIfExists(c.backup); err != nil {
				return fmt.Errorf("remove backup: %w", err)
			}
		}
	}

	return nil
}

// prepareBackupSlot rotates/removes existing backup generations before a new commit.
func prepareBackupSlot(backupPath string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	switch keep {
	case 0, 1:
		return removeIfExists(backupPath)
	default:
		oldest := fmt.Sprintf("%s.%d", backupPath, keep-1)
		if err := removeIfExists(oldest); err != nil {
			return err
		}

		for i := keep - 2; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", backupPath, i)
			to := fmt.Sprintf("%s.%d", backupPath, i+1)
			if err := renameIfExists(from, to); err != nil {
				return err
			}
		}

		return renameIfExists(backupPath, backupPath+".1")
	}
}

// renameIfExists renames source to destination when source exists.
func renameIfExists(from string, to string) error {
	_, err := os.Stat(from)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if err := removeIfExists(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// removeIfExists removes file when present.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) || err == nil {
		return nil
	}

	return fmt.Errorf("remove %s: %w", path, err)
}

// rollbackFromBackup restores backup on failed commit.
func rollbackFromBackup(path string, backupPath string) error {
	_ = os.Remove(path)

	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}

	return nil
}
