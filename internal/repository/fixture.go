package repository

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// ReadFixture decodes a JSON fixture. Unknown fields are rejected.
func ReadFixture(r io.Reader) (*domain.Fixture, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var f domain.Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("%w: fixture version is required", ErrInvalidInput)
	}
	return &f, nil
}

// ReadFixtureFile reads a JSON fixture from disk.
func ReadFixtureFile(path string) (*domain.Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFixture(file)
}
