// Package runtime provides the stage execution engine.
// It orchestrates the execution of Input, Filter, and Output modules.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rentalpipeline/basiccleaning/internal/artifact"
	"github.com/rentalpipeline/basiccleaning/internal/dataset"
	"github.com/rentalpipeline/basiccleaning/internal/errhandling"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
	"github.com/rentalpipeline/basiccleaning/internal/modules/filter"
	"github.com/rentalpipeline/basiccleaning/internal/modules/input"
	"github.com/rentalpipeline/basiccleaning/internal/modules/output"
	"github.com/rentalpipeline/basiccleaning/pkg/stage"
)

// Error codes for failures that carry no StageError of their own,
// typically cancellation.
const (
	ErrCodeInputFailed  = "INPUT_FAILED"
	ErrCodeFilterFailed = "FILTER_FAILED"
	ErrCodeOutputFailed = "OUTPUT_FAILED"
	ErrCodeInvalidInput = "INVALID_INPUT"
)

// Execution status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Common errors
var (
	// ErrNilInputModule is returned when input module is nil
	ErrNilInputModule = errors.New("input module is nil")

	// ErrNilOutputModule is returned when output module is nil
	ErrNilOutputModule = errors.New("output module is nil")
)

// publishedReporter is implemented by output modules that publish an artifact.
type publishedReporter interface {
	Published() *artifact.Handle
}

// Executor runs one cleaning run: Input -> Filters -> Output, in that order
// and without overlap.
//
// The Executor only interacts with modules through their public interfaces,
// so modules can be developed and tested without the runtime.
type Executor struct {
	inputModule   input.Module
	filterModules []filter.Module
	outputModule  output.Module
	jobType       string
}

// NewExecutor creates an executor with all modules configured.
//
// Parameters:
//   - inputModule: loads the dataset
//   - filterModules: applied in slice order (can be nil)
//   - outputModule: persists the cleaned dataset
func NewExecutor(inputModule input.Module, filterModules []filter.Module, outputModule output.Module) *Executor {
	return &Executor{
		inputModule:   inputModule,
		filterModules: filterModules,
		outputModule:  outputModule,
		jobType:       stage.JobType,
	}
}

// Execute runs the stage for runID.
//
// Execution flow:
//  1. Execute Input module to load the dataset
//  2. Execute Filter modules in sequence
//  3. Execute Output module to publish the result
//  4. Return ExecutionResult with status, counts and per-filter stats
//
// The output module is never invoked when input or a filter fails, so a
// failed run publishes nothing. The input module is closed as soon as the
// dataset is loaded; the output module at the end of execution.
//
// Returns both result and error; the result is never nil.
func (e *Executor) Execute(ctx context.Context, runID string) (*stage.ExecutionResult, error) {
	startedAt := time.Now()
	result := &stage.ExecutionResult{
		RunID:     runID,
		Status:    StatusError,
		StartedAt: startedAt,
	}
	runCtx := logger.RunContext{RunID: runID, JobType: e.jobType, FilterIndex: -1}

	if err := e.validateExecution(result); err != nil {
		logger.LogRunEnd(runCtx, StatusError, 0, 0, time.Since(startedAt))
		return result, err
	}

	defer e.closeModule(runID, "output", e.outputModule)

	ds, err := e.executeInput(ctx, runCtx, result)
	e.closeModule(runID, "input", e.inputModule)
	if err != nil {
		return e.fail(runCtx, result, startedAt, err)
	}

	ds, err = e.executeFilters(ctx, runCtx, ds, result)
	if err != nil {
		return e.fail(runCtx, result, startedAt, err)
	}

	if err := e.executeOutput(ctx, runCtx, ds, result); err != nil {
		return e.fail(runCtx, result, startedAt, err)
	}

	result.Status = StatusSuccess
	result.CompletedAt = time.Now()
	logger.LogRunEnd(runCtx, StatusSuccess, result.RecordsIn, result.RecordsOut, result.CompletedAt.Sub(startedAt))
	return result, nil
}

func (e *Executor) fail(runCtx logger.RunContext, result *stage.ExecutionResult, startedAt time.Time, err error) (*stage.ExecutionResult, error) {
	result.CompletedAt = time.Now()
	logger.LogRunEnd(runCtx, StatusError, result.RecordsIn, result.RecordsOut, result.CompletedAt.Sub(startedAt))
	return result, err
}

// validateExecution validates the modules before execution.
func (e *Executor) validateExecution(result *stage.ExecutionResult) error {
	if e.inputModule == nil {
		logger.Error("stage execution failed: input module is nil", slog.String("run_id", result.RunID))
		result.CompletedAt = time.Now()
		result.Error = buildExecutionError(ErrCodeInvalidInput, "input", ErrNilInputModule)
		return ErrNilInputModule
	}
	if e.outputModule == nil {
		logger.Error("stage execution failed: output module is nil", slog.String("run_id", result.RunID))
		result.CompletedAt = time.Now()
		result.Error = buildExecutionError(ErrCodeInvalidInput, "output", ErrNilOutputModule)
		return ErrNilOutputModule
	}
	for i, m := range e.filterModules {
		if m == nil {
			err := fmt.Errorf("filter module %d is nil", i)
			result.CompletedAt = time.Now()
			result.Error = buildExecutionError(ErrCodeInvalidInput, "filter", err)
			return err
		}
	}
	return nil
}

// buildExecutionError creates an ExecutionError from err. The StageError
// code and category win over the fallback code.
func buildExecutionError(fallbackCode, module string, err error) *stage.ExecutionError {
	ex := &stage.ExecutionError{
		Code:     fallbackCode,
		Category: string(errhandling.GetErrorCategory(err)),
		Message:  err.Error(),
		Module:   module,
	}
	if code := errhandling.GetErrorCode(err); code != "" {
		ex.Code = code
	}
	if cause := errhandling.ClassifyCause(err); cause != errhandling.CauseUnknown {
		ex.Details = map[string]interface{}{"cause": string(cause)}
	}
	return ex
}

// moduleCloser interface for modules that can be closed.
type moduleCloser interface {
	Close() error
}

// closeModule closes a module and logs any error.
func (e *Executor) closeModule(runID, moduleName string, m moduleCloser) {
	if err := m.Close(); err != nil {
		logger.Warn("failed to close module",
			slog.String("run_id", runID),
			slog.String("module", moduleName),
			slog.String("error", err.Error()),
		)
	}
}

// executeInput executes the input module and records the row count.
func (e *Executor) executeInput(ctx context.Context, runCtx logger.RunContext, result *stage.ExecutionResult) (*dataset.Dataset, error) {
	stageCtx := runCtx
	stageCtx.Stage = "input"
	logger.LogStageStart(stageCtx)

	start := time.Now()
	ds, err := e.inputModule.Fetch(ctx)
	duration := time.Since(start)
	if err == nil && ds == nil {
		err = errhandling.NewParseError("input module returned no dataset", nil)
	}
	if err != nil {
		result.Error = buildExecutionError(ErrCodeInputFailed, "input", err)
		logger.LogStageEnd(stageCtx, 0, duration, &logger.StageError{Code: result.Error.Code, Message: err.Error()})
		logError(stageCtx, result.Error, err)
		return nil, fmt.Errorf("executing input module: %w", err)
	}

	result.RecordsIn = ds.Len()
	logger.LogStageEnd(stageCtx, ds.Len(), duration, nil)
	return ds, nil
}

// executeFilters runs all filter modules in sequence and records how many
// rows each one removed.
func (e *Executor) executeFilters(ctx context.Context, runCtx logger.RunContext, ds *dataset.Dataset, result *stage.ExecutionResult) (*dataset.Dataset, error) {
	stageCtx := runCtx
	stageCtx.Stage = "filter"
	logger.LogStageStart(stageCtx)
	logger.Info("Removing outliers", slog.String("run_id", runCtx.RunID), slog.Int("records", ds.Len()))

	start := time.Now()
	current := ds
	for i, m := range e.filterModules {
		moduleCtx := stageCtx
		moduleCtx.ModuleType = m.Name()
		moduleCtx.FilterIndex = i

		filterStart := time.Now()
		next, err := m.Process(ctx, current)
		filterDuration := time.Since(filterStart)
		if err == nil && next == nil {
			err = fmt.Errorf("filter %s returned no dataset", m.Name())
		}
		if err != nil {
			result.Error = buildExecutionError(ErrCodeFilterFailed, "filter", err)
			result.Error.Message = fmt.Sprintf("filter module %d (%s) failed: %v", i, m.Name(), err)
			if result.Error.Details == nil {
				result.Error.Details = map[string]interface{}{}
			}
			result.Error.Details["filterIndex"] = i
			logger.LogStageEnd(moduleCtx, current.Len(), time.Since(start), &logger.StageError{Code: result.Error.Code, Message: err.Error()})
			logError(moduleCtx, result.Error, err)
			return nil, fmt.Errorf("executing filter module %d (%s): %w", i, m.Name(), err)
		}

		stat := stage.FilterStat{
			Name:       m.Name(),
			RecordsIn:  current.Len(),
			RecordsOut: next.Len(),
			Duration:   filterDuration,
		}
		result.Filters = append(result.Filters, stat)
		logger.Debug("filter module completed",
			slog.String("run_id", runCtx.RunID),
			slog.String("module_type", stat.Name),
			slog.Int("filter_index", i),
			slog.Int("input_records", stat.RecordsIn),
			slog.Int("output_records", stat.RecordsOut),
			slog.Int("dropped", stat.Dropped()),
			slog.Duration("duration", filterDuration),
		)
		current = next
	}

	logger.LogStageEnd(stageCtx, current.Len(), time.Since(start), nil)
	return current, nil
}

// executeOutput executes the output module and records the published artifact.
func (e *Executor) executeOutput(ctx context.Context, runCtx logger.RunContext, ds *dataset.Dataset, result *stage.ExecutionResult) error {
	stageCtx := runCtx
	stageCtx.Stage = "output"
	logger.LogStageStart(stageCtx)

	start := time.Now()
	sent, err := e.outputModule.Send(ctx, ds)
	duration := time.Since(start)
	if err != nil {
		result.Error = buildExecutionError(ErrCodeOutputFailed, "output", err)
		logger.LogStageEnd(stageCtx, 0, duration, &logger.StageError{Code: result.Error.Code, Message: err.Error()})
		logError(stageCtx, result.Error, err)
		return fmt.Errorf("executing output module: %w", err)
	}

	result.RecordsOut = sent
	if p, ok := e.outputModule.(publishedReporter); ok {
		if h := p.Published(); h != nil {
			result.OutputArtifact = h.String()
		}
	}
	logger.LogStageEnd(stageCtx, sent, duration, nil)
	return nil
}

func logError(stageCtx logger.RunContext, ex *stage.ExecutionError, err error) {
	errCtx := logger.ErrorContext{
		RunID:        stageCtx.RunID,
		JobType:      stageCtx.JobType,
		Stage:        stageCtx.Stage,
		ModuleType:   stageCtx.ModuleType,
		ErrorCode:    ex.Code,
		ErrorMessage: ex.Message,
		Err:          err,
	}
	if cause, ok := ex.Details["cause"].(string); ok {
		errCtx.Cause = cause
	}
	logger.LogError("stage error", errCtx)
}
