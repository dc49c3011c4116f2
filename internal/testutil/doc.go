// Package testutil provides test fixtures and utilities.
//
// This package contains embedded fixtures and helper functions for
// loading valid and invalid configurations in unit tests.
//
// # Fixtures
//
// Fixtures are embedded using go:embed:
//
//	fixtures/valid_manifest.yaml
//	fixtures/invalid_manifest.yaml
//	fixtures/sweep_manifest.yaml
//	fixtures/valid_record.json
//
// # Loading Fixtures
//
// Helper functions load and parse fixtures into typed config objects:
//
//	manifest, err := testutil.ValidManifest()
//	manifest, err := testutil.SweepManifest()
//	record, err := testutil.ValidRunRecord()
//	manifest, err := testutil.InvalidManifest()
//
// # Raw Fixture Access
//
// For custom parsing or testing edge cases:
//
//	data, err := testutil.LoadFixture("valid_manifest.yaml")
//
// # Usage in Tests
//
//	func TestManifestValidation(t *testing.T) {
//	    valid, _ := testutil.ValidManifest()
//	    if err := valid.Validate(); err != nil {
//	        t.Errorf("valid manifest failed validation: %v", err)
//	    }
//
//	    invalid, _ := testutil.InvalidManifest()
//	    if err := invalid.Validate(); err == nil {
//	        t.Error("invalid manifest should fail validation")
//	    }
//	}
package testutil
