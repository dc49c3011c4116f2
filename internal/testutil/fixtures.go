package testutil

import (
	"embed"
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/polonav/igpctl/internal/config"
)

//go:embed fixtures/*.yaml fixtures/*.json
var fixturesFS embed.FS

// LoadFixture loads a fixture file by name.
func LoadFixture(name string) ([]byte, error) {
	return fixturesFS.ReadFile("fixtures/" + name)
}

// LoadManifestFixture loads a manifest fixture.
func LoadManifestFixture(name string) (*config.Manifest, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	var manifest config.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// LoadRunRecordFixture loads a run record fixture.
func LoadRunRecordFixture(name string) (*config.RunRecord, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	var record config.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ValidManifest returns the valid training manifest fixture.
func ValidManifest() (*config.Manifest, error) {
	return LoadManifestFixture("valid_manifest.yaml")
}

// InvalidManifest returns the invalid manifest fixture.
func InvalidManifest() (*config.Manifest, error) {
	return LoadManifestFixture("invalid_manifest.yaml")
}

// SweepManifest returns the sweep manifest fixture.
func SweepManifest() (*config.Manifest, error) {
	return LoadManifestFixture("sweep_manifest.yaml")
}

// ValidRunRecord returns the valid run record fixture.
func ValidRunRecord() (*config.RunRecord, error) {
	return LoadRunRecordFixture("valid_record.json")
}
