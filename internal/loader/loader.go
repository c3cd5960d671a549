// Package loader reads surveys and population frames from files on disk.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"smallarea/internal/codec"
	"smallarea/internal/domain"
)

// LoadSurvey loads observations and, optionally, a population frame. The
// codec is chosen from each file's extension. A frame read from framePath
// replaces any frame embedded in a YAML or JSON survey document.
func LoadSurvey(observationsPath, framePath string) (*domain.Survey, error) {
	imp, err := importerFor(observationsPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(observationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open observations: %w", err)
	}
	defer f.Close()

	survey, err := imp.ParseSurvey(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", observationsPath, err)
	}
	if survey.Name == "" {
		survey.Name = baseName(observationsPath)
	}

	if framePath != "" {
		frame, err := LoadFrame(framePath)
		if err != nil {
			return nil, err
		}
		survey.Frame = frame
	}

	return survey, nil
}

// LoadFrame loads a population frame from a file
func LoadFrame(path string) (domain.DomainFrame, error) {
	imp, err := importerFor(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer f.Close()

	frame, err := imp.ParseFrame(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame %s: %w", path, err)
	}
	return frame, nil
}

// WriteRun exports a run to path, picking the format from the extension
func WriteRun(run *domain.EstimationRun, path string) error {
	format := codec.FormatFromPath(path)
	exp, err := codec.NewExporter(format)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := exp.Export(run, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to export run: %w", err)
	}
	return f.Close()
}

func importerFor(path string) (codec.Importer, error) {
	format := codec.FormatFromPath(path)
	if format == "" {
		return nil, fmt.Errorf("cannot infer format of %s from its extension", path)
	}
	return codec.NewImporter(format)
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
