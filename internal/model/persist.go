package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lumen-ml/lumen/internal/serialization"
)

// File names inside a model directory.
const (
	ConfigFile  = "config.json"
	WeightsFile = "model.safetensors"
)

// Weight-file metadata keys and values.
const (
	MetadataFormat     = "format"
	MetadataSnapshotID = "snapshot_id"
	FormatName         = "lumen"
)

// Save writes config.json and model.safetensors into dir, creating it if
// needed. Each save gets a fresh snapshot id.
func (m *Model) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: model directories are shared
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := m.cfg.SaveConfig(filepath.Join(dir, ConfigFile)); err != nil {
		return err
	}

	snapshot := uuid.NewString()
	metadata := map[string]string{
		MetadataFormat:     FormatName,
		MetadataSnapshotID: snapshot,
	}
	if err := serialization.WriteSafeTensors(filepath.Join(dir, WeightsFile), m.StateDict(), metadata); err != nil {
		return fmt.Errorf("failed to save weights: %w", err)
	}

	m.logger.Info("model saved", "dir", dir, "snapshot_id", snapshot, "parameters", m.NumParameters())
	return nil
}

// Load reads the config from dir, builds a fresh model and restores its
// weights. A missing weight file is not fatal: it is logged as a warning
// and the freshly initialised weights are kept.
func Load(dir string, opts ...Option) (*Model, error) {
	cfg, err := LoadConfig(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}
	m, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, WeightsFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("using freshly initialised weights",
			"error", fmt.Errorf("%w: %s", ErrWeightsNotFound, path))
		return m, nil
	}

	r, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load weights: %w", err)
	}
	state, err := r.StateDict()
	if err != nil {
		return nil, fmt.Errorf("failed to load weights: %w", err)
	}
	if err := m.LoadStateDict(state); err != nil {
		return nil, fmt.Errorf("failed to load weights: %w", err)
	}

	m.logger.Info("model loaded",
		"dir", dir,
		"snapshot_id", r.Metadata()[MetadataSnapshotID],
		"parameters", m.NumParameters())
	return m, nil
}

// WeightsInfo summarises a saved weight file without loading a model.
type WeightsInfo struct {
	Format     string
	SnapshotID string
	NumTensors int
}

// ReadWeightsInfo reads the metadata of dir's weight file. The data
// checksum is verified.
func ReadWeightsInfo(dir string) (WeightsInfo, error) {
	path := filepath.Join(dir, WeightsFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return WeightsInfo{}, fmt.Errorf("%w: %s", ErrWeightsNotFound, path)
	}
	r, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return WeightsInfo{}, fmt.Errorf("failed to read weights: %w", err)
	}
	meta := r.Metadata()
	return WeightsInfo{
		Format:     meta[MetadataFormat],
		SnapshotID: meta[MetadataSnapshotID],
		NumTensors: len(r.TensorNames()),
	}, nil
}
