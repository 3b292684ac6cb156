package pipeline

import (
	"github.com/Brownie44l1/fiber-thresholds/internal/centering"
	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
	"github.com/Brownie44l1/fiber-thresholds/internal/field"
	"github.com/Brownie44l1/fiber-thresholds/internal/model"
)

// Options is the raw, string-typed run configuration as given on the
// command line.
type Options struct {
	ElectrodeFile string
	TractFile     string
	ModelDir      string
	OutputFile    string
	Centering     string
	TractType     string
	Conductivity  string
	Mode          string

	XLSXFile       string
	Workers        int
	BatchSize      int
	ORTLibraryPath string
}

// Config is a validated run configuration with every named choice resolved
// to its variant.
type Config struct {
	ElectrodeFile string
	TractFile     string
	ModelDir      string
	OutputFile    string
	TractType     string
	XLSXFile      string

	Strategy     centering.Strategy
	Conductivity field.Conductivity
	Mode         model.Mode

	Workers        int
	BatchSize      int
	ORTLibraryPath string
}

// Parse resolves and checks o. It touches no files, so an unknown strategy,
// conductivity or mode fails before any input is read.
func Parse(o Options) (Config, error) {
	for name, v := range map[string]string{
		"electrode file": o.ElectrodeFile,
		"tract file":     o.TractFile,
		"model dir":      o.ModelDir,
		"output file":    o.OutputFile,
		"tract type":     o.TractType,
	} {
		if v == "" {
			return Config{}, errors.InvalidConfiguration("%s is required", name)
		}
	}

	strategy, err := centering.ParseStrategy(o.Centering)
	if err != nil {
		return Config{}, err
	}
	conductivity, err := field.ParseConductivity(o.Conductivity)
	if err != nil {
		return Config{}, err
	}
	mode, err := model.ParseMode(o.Mode)
	if err != nil {
		return Config{}, err
	}

	if o.Workers < 1 {
		return Config{}, errors.InvalidConfiguration("workers must be at least 1, got %d", o.Workers)
	}
	if o.BatchSize < 0 {
		return Config{}, errors.InvalidConfiguration("batch size must not be negative, got %d", o.BatchSize)
	}

	return Config{
		ElectrodeFile:  o.ElectrodeFile,
		TractFile:      o.TractFile,
		ModelDir:       o.ModelDir,
		OutputFile:     o.OutputFile,
		TractType:      o.TractType,
		XLSXFile:       o.XLSXFile,
		Strategy:       strategy,
		Conductivity:   conductivity,
		Mode:           mode,
		Workers:        o.Workers,
		BatchSize:      o.BatchSize,
		ORTLibraryPath: o.ORTLibraryPath,
	}, nil
}
