package transplant

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"vidshrink/internal/fileutil"
	"vidshrink/internal/logging"
	"vidshrink/internal/services"
)

// BackupSuffix is appended to a source while its replacement moves in.
const BackupSuffix = ".bak"

// Filesystem hooks, replaced in tests to inject failures.
var (
	renameFile = os.Rename
	moveFile   = fileutil.MoveFile
	removeFile = os.Remove
)

// ReplaceFile renames src over dst. If the platform refuses to rename over
// an existing file, dst is moved aside first and put back should the second
// rename fail, so either the old or the new dst is always present.
func ReplaceFile(src, dst string) error {
	err := renameFile(src, dst)
	if err == nil {
		return nil
	}
	if _, statErr := os.Lstat(dst); statErr != nil {
		return err
	}
	aside := dst + ".replace-old"
	if err := renameFile(dst, aside); err != nil {
		return fmt.Errorf("move %s aside: %w", dst, err)
	}
	if err := renameFile(src, dst); err != nil {
		if restoreErr := renameFile(aside, dst); restoreErr != nil {
			return fmt.Errorf("replace %s: %w (restore from %s failed: %v)", dst, err, aside, restoreErr)
		}
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	_ = removeFile(aside)
	return nil
}

// ReplaceSource moves output over source: source -> source.bak, output ->
// source, then the backup is deleted. When a step fails the backup is
// restored and an error marked services.ErrReplaceFailed is returned; if the
// restore also fails the error is marked services.ErrRollbackFailed and
// names both paths.
func ReplaceSource(source, output string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	backup := source + BackupSuffix
	if _, err := os.Lstat(backup); err == nil {
		return services.Wrap(services.ErrReplaceFailed, "replace", source, "backup "+backup+" already exists", nil)
	}
	if _, err := os.Stat(output); err != nil {
		return services.Wrap(services.ErrReplaceFailed, "replace", source, "output missing", err)
	}

	if err := renameFile(source, backup); err != nil {
		return rollback(source, backup, services.Wrap(services.ErrReplaceFailed, "replace", source, "back up source", err), logger)
	}
	if err := moveFile(output, source); err != nil {
		return rollback(source, backup, services.Wrap(services.ErrReplaceFailed, "replace", source, "move output into place", err), logger)
	}
	if err := removeFile(backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(logger, "failed to delete source backup", "replace_backup_cleanup_failed",
			logging.String("backup", backup),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the .bak file once the replacement is verified"),
			logging.String(logging.FieldImpact, "original file still occupies disk space"),
		)
	}
	return nil
}

// rollback puts the backup back when the live source is gone. The cause is
// always returned; a failed restore upgrades it to ErrRollbackFailed.
func rollback(source, backup string, cause error, logger *slog.Logger) error {
	if _, err := os.Lstat(source); err == nil {
		return cause
	}
	if _, err := os.Lstat(backup); err != nil {
		logging.ErrorWithContext(logger, "source and backup both missing", "replace_rollback_failed",
			logging.String("source", source),
			logging.String("backup", backup),
			logging.String(logging.FieldErrorHint, "restore the file from another copy"),
		)
		return services.Wrap(services.ErrRollbackFailed, "replace", source, "source and backup both missing", cause)
	}
	if err := renameFile(backup, source); err != nil {
		logging.ErrorWithContext(logger, "failed to restore source from backup", "replace_rollback_failed",
			logging.String("source", source),
			logging.String("backup", backup),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "rename the .bak file back to the source name manually"),
		)
		return services.Wrap(services.ErrRollbackFailed, "replace", source, fmt.Sprintf("original kept at %s", backup), errors.Join(cause, err))
	}
	logger.Warn("source restored from backup after failed replace",
		logging.String("source", source),
		logging.String(logging.FieldEventType, "replace_rolled_back"),
		logging.String(logging.FieldErrorHint, "check permissions and free space in the source directory"),
		logging.String(logging.FieldImpact, "source left uncompressed"),
	)
	return cause
}
