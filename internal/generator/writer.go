package generator

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
)

// WriteDataset serializes the dataset into a single JSON file at path,
// creating parent directories as needed.
func WriteDataset(dataset domain.Dataset, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	return writeJSON(path, dataset)
}

// EncodeDataset writes the dataset as indented JSON to w.
func EncodeDataset(w io.Writer, dataset domain.Dataset) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(dataset); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return nil
}

func writeJSON(path string, dataset domain.Dataset) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if err := EncodeDataset(file, dataset); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
