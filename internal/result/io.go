package result

import (
	"encoding/json"
	"os"

	"github.com/google/renameio/v2"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
)

// Marshal renders r as indented JSON. Map keys are sorted, so identical
// results always produce identical bytes.
func Marshal(r Result) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteFile writes r to path through a temporary file in the same directory
// that is renamed into place only after it is fully written and synced.
func WriteFile(path string, r Result) error {
	data, err := Marshal(r)
	if err != nil {
		return errors.OutputWrite(path, err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return errors.OutputWrite(path, err)
	}
	return nil
}

// ReadFile loads a result written by WriteFile.
func ReadFile(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InputLoad(path, err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.WithCode(errors.CodeInputLoad, err, "failed to parse "+path)
	}
	return r, nil
}
