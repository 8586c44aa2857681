// Package factory provides module creation functions for the stage runtime.
// It centralizes the logic for instantiating the input, filter, and output
// modules of a cleaning run from the stage parameters.
package factory

import (
	"errors"

	"github.com/rentalpipeline/basiccleaning/internal/modules/filter"
	"github.com/rentalpipeline/basiccleaning/internal/modules/input"
	"github.com/rentalpipeline/basiccleaning/internal/modules/output"
	"github.com/rentalpipeline/basiccleaning/pkg/stage"
)

// Client is the artifact store client a cleaning run reads from and
// publishes through. *artifact.Run satisfies it.
type Client interface {
	input.Fetcher
	output.Publisher
}

// Modules holds everything the executor runs, in execution order.
type Modules struct {
	Input   input.Module
	Filters []filter.Module
	Output  output.Module
}

// CreateInputModule creates the module downloading params.InputArtifact.
func CreateInputModule(client input.Fetcher, params stage.Params) (input.Module, error) {
	return input.NewArtifactCSV(client, params.InputArtifact)
}

// CreateFilterModules returns the cleaning filters for the price bounds.
func CreateFilterModules(params stage.Params) []filter.Module {
	return filter.DefaultChain(params.MinPrice, params.MaxPrice)
}

// CreateOutputModule creates the module publishing params.OutputArtifact.
// The serialised file is written to workDir.
func CreateOutputModule(client output.Publisher, params stage.Params, workDir string) (output.Module, error) {
	return output.NewArtifactCSV(client, output.ArtifactCSVConfig{
		Name:        params.OutputArtifact,
		Type:        params.OutputType,
		Description: params.OutputDescription,
		WorkDir:     workDir,
	})
}

// CreateModules validates params and builds all modules of a run.
func CreateModules(client Client, params stage.Params, workDir string) (*Modules, error) {
	if client == nil {
		return nil, errors.New("artifact client is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	in, err := CreateInputModule(client, params)
	if err != nil {
		return nil, err
	}
	out, err := CreateOutputModule(client, params, workDir)
	if err != nil {
		return nil, errors.Join(err, in.Close())
	}
	return &Modules{
		Input:   in,
		Filters: CreateFilterModules(params),
		Output:  out,
	}, nil
}
