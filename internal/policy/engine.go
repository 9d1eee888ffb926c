// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package policy evaluates rego authorization policies for the forward-auth
// gateway. Policies are compiled once at startup (or on reload) and the
// compiled set is immutable, so a single Engine is safe for concurrent use.
package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/loader"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/topdown"

	"github.com/tomtom215/authgate/internal/logging"
	"github.com/tomtom215/authgate/internal/metrics"
)

// DefaultQuery is the decision document evaluated when no query is
// configured. Policies keep the upstream cisidm package name so existing
// policy files work unchanged.
const DefaultQuery = "data.cisidm.forward_auth"

// Default outcomes when no rule sets an explicit allow value.
const (
	DefaultDeny  = "deny"
	DefaultAllow = "allow"
)

var (
	// ErrEvaluation marks a runtime fault inside a compiled policy
	// (conflicting rule values, type errors, cancelled query). Callers must
	// fail closed.
	ErrEvaluation = errors.New("policy evaluation failed")

	// ErrInvalidResult is returned when the decision query yields something
	// other than a single object document.
	ErrInvalidResult = errors.New("policy returned an invalid result type")
)

// CompileError reports a policy module that failed to parse or compile. The
// wrapped error carries the rego file and location.
type CompileError struct {
	Module string
	Err    error
}

func (e *CompileError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("policy %s: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("policy compilation failed: %v", e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Options configures a policy Engine.
type Options struct {
	// Directories are scanned recursively for .rego files.
	Directories []string

	// Inline maps a synthetic module name to rego source, for policies
	// embedded directly in the configuration file.
	Inline map[string]string

	// Query is the decision document to evaluate. Defaults to DefaultQuery.
	Query string

	// Default is the outcome when no rule sets allow explicitly: DefaultDeny
	// (the default) or DefaultAllow.
	Default string

	// AllowCORSPreflight short-circuits OPTIONS requests that carry an
	// Origin header to an allow verdict without evaluating any rules.
	AllowCORSPreflight bool

	// Debug enables rego tracing. Trace events are logged per evaluation,
	// which is far too expensive for production use.
	Debug bool
}

// Engine holds a compiled, immutable policy set.
type Engine struct {
	compiler       *ast.Compiler
	query          string
	defaultAllow   bool
	allowPreflight bool
	debug          bool
}

// NewEngine loads and compiles all policies from the configured directories
// and inline modules. Compilation failures are returned as *CompileError and
// are fatal at startup.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	switch opts.Default {
	case "", DefaultDeny, DefaultAllow:
	default:
		return nil, fmt.Errorf("invalid default outcome %q", opts.Default)
	}

	moduleMap := map[string]*ast.Module{}

	if len(opts.Directories) > 0 {
		modules, err := loader.AllRegos(opts.Directories)
		if err != nil {
			return nil, &CompileError{Err: fmt.Errorf("failed to load rego files: %w", err)}
		}
		moduleMap = modules.ParsedModules()
	}

	for name, content := range opts.Inline {
		parsed, err := ast.ParseModule(name, content)
		if err != nil {
			return nil, &CompileError{Module: name, Err: err}
		}
		moduleMap[name] = parsed
	}

	compiler := ast.NewCompiler()
	compiler.Compile(moduleMap)
	if compiler.Failed() {
		return nil, &CompileError{Err: compiler.Errors}
	}

	if len(moduleMap) == 0 {
		logging.Ctx(ctx).Warn().
			Msg("no policy modules loaded, every decision falls back to the default outcome")
	} else {
		logging.Ctx(ctx).Info().
			Int("modules", len(compiler.Modules)).
			Msg("policy engine prepared")
	}

	query := opts.Query
	if query == "" {
		query = DefaultQuery
	}

	return &Engine{
		compiler:       compiler,
		query:          query,
		defaultAllow:   opts.Default == DefaultAllow,
		allowPreflight: opts.AllowCORSPreflight,
		debug:          opts.Debug,
	}, nil
}

// Evaluate runs the decision query for one input document.
//
// An empty result set, or a result object without an explicit allow value,
// yields the configured default outcome. CORS preflight requests (OPTIONS
// with an Origin header) are allowed without rule evaluation when enabled.
// Runtime faults are wrapped in ErrEvaluation; the caller must treat them as
// deny.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Verdict, error) {
	if e.allowPreflight && strings.EqualFold(input.Method, "OPTIONS") && input.Headers.Get("Origin") != "" {
		metrics.RecordDecision(true, "preflight")
		return &Verdict{Allow: true}, nil
	}

	start := time.Now()
	result, err := e.eval(ctx, input)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.EvaluationErrorsTotal.Inc()
		metrics.RecordDecision(false, "error")
		return nil, fmt.Errorf("%w: query %s: %w", ErrEvaluation, e.query, err)
	}

	verdict, err := e.decode(result)
	if err != nil {
		metrics.EvaluationErrorsTotal.Inc()
		metrics.RecordDecision(false, "error")
		return nil, err
	}

	metrics.RecordDecision(verdict.Allow, "policy")
	return verdict, nil
}

func (e *Engine) eval(ctx context.Context, input *Input) (rego.ResultSet, error) {
	options := []func(*rego.Rego){
		rego.Imports([]string{"rego.v1"}),
		rego.Query(e.query),
		rego.Input(input),
		rego.Compiler(e.compiler),

		// Always install a print hook so policy authors can debug with
		// print() without enabling full tracing.
		rego.PrintHook(topdown.NewPrintHook(os.Stderr)),
	}

	if e.debug {
		tracer := new(topdown.BufferTracer)
		options = append(options,
			rego.Trace(true),
			rego.QueryTracer(tracer),
		)

		defer func() {
			l := logging.Ctx(ctx)
			for _, evt := range *tracer {
				l.Debug().Str("event", evt.String()).Msg("rego trace")
			}
		}()
	}

	return rego.New(options...).Eval(ctx)
}

// decode turns the raw result set into a Verdict, applying the default
// outcome when the decision document does not set allow explicitly.
func (e *Engine) decode(result rego.ResultSet) (*Verdict, error) {
	if len(result) == 0 {
		return &Verdict{Allow: e.defaultAllow}, nil
	}

	if len(result) > 1 || len(result[0].Expressions) != 1 {
		return nil, fmt.Errorf("%w: expected a single expression", ErrInvalidResult)
	}

	doc, ok := result[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrInvalidResult, result[0].Expressions[0].Value)
	}

	verdict := &Verdict{}
	if err := mapstructure.WeakDecode(doc, verdict); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}

	if _, explicit := doc["allow"]; !explicit {
		verdict.Allow = e.defaultAllow
	}

	return verdict, nil
}
