package snapshot

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Archive layout: a zip with a small manifest that can be inspected without
// unpacking the item payload.
const (
	manifestName = "manifest.json"
	dataName     = "data.json"
)

type archiveData struct {
	Items    []Item    `json:"items"`
	Failures []Failure `json:"failures,omitempty"`
}

// WriteArchive stores a snapshot as a zip at path, manifest first.
func WriteArchive(path string, snap Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing snapshot archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	if err := writeJSON(zw, manifestName, snap.Meta); err != nil {
		return err
	}
	if err := writeJSON(zw, dataName, archiveData{Items: snap.Items, Failures: snap.Failures}); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("writing snapshot archive: %w", err)
	}
	return f.Close()
}

// ReadArchive loads a snapshot written by WriteArchive.
func ReadArchive(path string) (Snapshot, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot archive: %w", err)
	}
	defer zr.Close()

	var snap Snapshot
	if err := readJSON(&zr.Reader, manifestName, &snap.Meta); err != nil {
		return Snapshot{}, err
	}
	var data archiveData
	if err := readJSON(&zr.Reader, dataName, &data); err != nil {
		return Snapshot{}, err
	}
	snap.Items = data.Items
	snap.Failures = data.Failures
	return snap, nil
}

// ReadMeta loads only the manifest, for listing archives cheaply.
func ReadMeta(path string) (Meta, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return Meta{}, fmt.Errorf("reading snapshot archive: %w", err)
	}
	defer zr.Close()

	var meta Meta
	if err := readJSON(&zr.Reader, manifestName, &meta); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

func writeJSON(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("writing snapshot archive entry %s: %w", name, err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing snapshot archive entry %s: %w", name, err)
	}
	return nil
}

func readJSON(zr *zip.Reader, name string, v any) error {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("reading snapshot archive entry %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("reading snapshot archive entry %s: %w", name, err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("reading snapshot archive entry %s: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("snapshot archive is missing %s", name)
}
