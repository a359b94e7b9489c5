package lib

import (
	"os"
	"path/filepath"

	"github.com/veridoc/veridoc/internal/models"
)

// ValidateIntakeFile checks a file against the intake allow-list and size
// ceiling. A validation failure is terminal for the intake stage; later
// stages are never attempted.
func ValidateIntakeFile(path string, cfg models.IntakeConfig) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound(path)
		}
		return WrapError(CategoryFileSystem, "cannot stat file", err)
	}
	if info.IsDir() {
		return ErrUnsupportedExtension(path, cfg.AllowedExtensions)
	}
	if !cfg.AllowsExtension(filepath.Ext(path)) {
		return ErrUnsupportedExtension(filepath.Base(path), cfg.AllowedExtensions)
	}
	if info.Size() > cfg.MaxFileSizeBytes() {
		return ErrFileTooLarge(filepath.Base(path), info.Size(), cfg.MaxFileSizeBytes())
	}
	return nil
}
