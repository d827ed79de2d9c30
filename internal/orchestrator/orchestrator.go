// Package orchestrator runs the fallback chain that turns one generation
// request into one build plan. The chain is strictly sequential: explicit
// cloud or CLI preferences are honored directly, everything else goes
// local-first with an optional simplified-prompt retry and an opt-in paid
// fallback at the end. Each run owns its candidate copy, recorder, and
// result; concurrent runs share nothing mutable.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plansmith/plansmith/internal/backend"
	"github.com/plansmith/plansmith/internal/buildplan"
	"github.com/plansmith/plansmith/internal/credential"
	"github.com/plansmith/plansmith/internal/errors"
	"github.com/plansmith/plansmith/internal/extract"
	"github.com/plansmith/plansmith/internal/log"
	"github.com/plansmith/plansmith/internal/probe"
	"github.com/plansmith/plansmith/internal/reconcile"
	"github.com/plansmith/plansmith/internal/trace"
)

// Chain step labels used in trace events.
const (
	stepExplicitCloud = "explicit-cloud"
	stepExplicitCLI   = "explicit-cli"
	stepLocal         = "local"
	stepRetry         = "retry-simplified"
	stepPaidFallback  = "paid-fallback"
)

const simplifiedDirective = `Return a single JSON object with "phases" and "packets". No prose, no code fences.`

// RetryOptions controls the simplified-prompt retry step. The caller still
// has to opt in per request; these bound what opting in buys.
type RetryOptions struct {
	Enabled     bool
	MaxAttempts int
	Temperature float64
}

// PaidFallbackOptions controls the terminal paid fallback step.
type PaidFallbackOptions struct {
	Enabled  bool
	Provider string
}

// Options carries the operator-level policy knobs.
type Options struct {
	Retry        RetryOptions
	PaidFallback PaidFallbackOptions
}

// DefaultOptions returns the stock policy: one retry at temperature 0.3,
// paid fallback honored when the caller opts in, targeting anthropic.
func DefaultOptions() Options {
	return Options{
		Retry:        RetryOptions{Enabled: true, MaxAttempts: 1, Temperature: 0.3},
		PaidFallback: PaidFallbackOptions{Enabled: true, Provider: "anthropic"},
	}
}

// Service is the orchestration entry point shared by the CLI, the HTTP
// server, and the Go API.
type Service struct {
	registry *backend.Registry
	prober   *probe.Prober
	resolver *credential.Resolver
	logger   *log.Logger
	opts     Options
}

// New creates the orchestration service. Nil collaborators get working
// defaults; zero option values get the DefaultOptions numbers.
func New(registry *backend.Registry, prober *probe.Prober, resolver *credential.Resolver, logger *log.Logger, opts Options) *Service {
	if registry == nil {
		registry = backend.NewRegistry()
	}
	if prober == nil {
		prober = probe.NewProber(0)
	}
	if resolver == nil {
		resolver = credential.NewResolver(nil)
	}
	if logger == nil {
		logger = log.DefaultLogger()
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Retry.Temperature <= 0 {
		opts.Retry.Temperature = 0.3
	}
	if opts.PaidFallback.Provider == "" {
		opts.PaidFallback.Provider = "anthropic"
	}
	return &Service{
		registry: registry,
		prober:   prober,
		resolver: resolver,
		logger:   logger,
		opts:     opts,
	}
}

// failure holds the most specific diagnostic of a failed chain step,
// carried forward so the terminal error can surface it.
type failure struct {
	reason string
	code   errors.ErrorCode
}

// Generate runs the fallback chain for one request. The Response is
// non-nil even on error and carries the full attempt trace; Plan is set
// exactly when err is nil. The only hard errors are CredentialMissing and
// BackendUnavailable for an explicitly requested backend, InvalidRequest,
// and the terminal AllBackendsExhausted.
func (s *Service) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	requestID := ""
	if req != nil {
		requestID = strings.TrimSpace(req.RequestID)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	rec := trace.NewRecorder(requestID)
	resp := &Response{RequestID: requestID}
	defer func() {
		resp.Trace = rec.Events()
		resp.Duration = time.Since(start)
	}()

	if err := req.Validate(); err != nil {
		rec.Event(trace.EventTypeError, "invalid request").WithError(err)
		return resp, err
	}
	req.RequestID = requestID
	resp.RequestedModel = req.Model

	candidates := s.registry.Candidates()
	pref := s.classifyPreference(req.PreferredProvider, candidates)

	ev := rec.Event(trace.EventTypeRunStart, "orchestration run started").
		WithData("candidates", len(candidates))
	if req.PreferredProvider != "" {
		ev.WithData("preference", req.PreferredProvider)
	}

	switch pref.class {
	case prefCloud:
		return s.generateExplicitCloud(ctx, rec, resp, req, pref, candidates)
	case prefCLI:
		return s.generateExplicitCLI(ctx, rec, resp, req, pref, candidates)
	default:
		return s.generateLocalChain(ctx, rec, resp, req, pref.hint, candidates)
	}
}

type prefClass int

const (
	prefNone prefClass = iota
	prefCloud
	prefCLI
	prefLocal
)

type preference struct {
	class     prefClass
	provider  string
	backendID string
	hint      string
}

// classifyPreference maps the caller's preference onto a chain entry
// point: a configured candidate id wins, then a registered cloud provider
// name; anything else is treated as a local server hint.
func (s *Service) classifyPreference(raw string, candidates []backend.Candidate) preference {
	pref := strings.TrimSpace(raw)
	if pref == "" {
		return preference{class: prefNone}
	}

	for _, c := range candidates {
		if !strings.EqualFold(c.ID, pref) {
			continue
		}
		switch c.Kind {
		case backend.KindCloudAPI:
			provider := c.Provider
			if provider == "" {
				provider = c.ID
			}
			return preference{class: prefCloud, provider: strings.ToLower(provider), backendID: c.ID}
		case backend.KindCLISubprocess:
			return preference{class: prefCLI, backendID: c.ID}
		default:
			return preference{class: prefLocal, backendID: c.ID, hint: c.BaseURL}
		}
	}

	lowered := strings.ToLower(pref)
	if _, err := s.registry.ProviderGenerator(lowered); err == nil {
		return preference{class: prefCloud, provider: lowered, backendID: lowered}
	}
	return preference{class: prefLocal, hint: pref}
}

// generateExplicitCloud is chain step 1: the caller named a cloud
// provider. Credential resolution failure surfaces immediately, and a
// failed call never substitutes another provider silently. The opt-in
// paid tail still applies when it targets a different provider.
func (s *Service) generateExplicitCloud(ctx context.Context, rec *trace.Recorder, resp *Response, req *Request, pref preference, candidates []backend.Candidate) (*Response, error) {
	key, origin, ok := s.resolver.Resolve(pref.provider, req.APIKey)
	ev := rec.Event(trace.EventTypeCredential, "resolving credential for "+pref.provider).
		WithData("provider", pref.provider).
		WithData("resolved", ok)
	if !ok {
		err := errors.NewCredentialMissingError(pref.provider)
		rec.Event(trace.EventTypeError, "credential missing for requested provider").WithError(err)
		s.logger.WithError(err).Error("credential missing", "provider", pref.provider)
		return resp, err
	}
	ev.WithData("origin", origin)

	gen, err := s.registry.ProviderGenerator(pref.provider)
	if err != nil {
		perr := errors.NewBackendUnavailableError(pref.backendID, "no transport registered for this provider")
		rec.Event(trace.EventTypeError, "requested provider not configured").WithError(perr)
		s.logger.WithError(perr).Error("requested provider not configured", "provider", pref.provider)
		return resp, perr
	}

	bReq := s.backendRequest(req, req.UserPrompt, req.Temperature)
	bReq.APIKey = key
	if bReq.Model == "" {
		bReq.Model = candidateModel(candidates, pref.backendID, pref.provider)
	}
	plan, det, fail := s.runStep(ctx, rec, resp, gen, pref.backendID, stepExplicitCloud, bReq)
	if plan != nil {
		return s.finish(rec, resp, req, plan, det)
	}

	if s.paidFallbackEligible(req) && !strings.EqualFold(s.opts.PaidFallback.Provider, pref.provider) {
		if plan, det, pfail, attempted := s.paidFallback(ctx, rec, resp, req, candidates); attempted {
			if plan != nil {
				return s.finish(rec, resp, req, plan, det)
			}
			fail = pfail
		}
	}
	return s.exhausted(rec, resp, fail)
}

// generateExplicitCLI is chain step 2: a named CLI-agent backend is
// called directly on its extended timeout, with no further fallback.
func (s *Service) generateExplicitCLI(ctx context.Context, rec *trace.Recorder, resp *Response, req *Request, pref preference, candidates []backend.Candidate) (*Response, error) {
	gen, err := s.registry.Generator(backend.KindCLISubprocess)
	if err != nil {
		perr := errors.NewBackendUnavailableError(pref.backendID, "no cli transport registered")
		rec.Event(trace.EventTypeError, "requested cli backend not configured").WithError(perr)
		s.logger.WithError(perr).Error("requested cli backend not configured", "backend", pref.backendID)
		return resp, perr
	}

	bReq := s.backendRequest(req, req.UserPrompt, req.Temperature)
	if bReq.Model == "" {
		bReq.Model = candidateModel(candidates, pref.backendID, "")
	}
	plan, det, fail := s.runStep(ctx, rec, resp, gen, pref.backendID, stepExplicitCLI, bReq)
	if plan != nil {
		return s.finish(rec, resp, req, plan, det)
	}
	return s.exhausted(rec, resp, fail)
}

// generateLocalChain is chain steps 3 through 6: probe the local
// servers, call the local adapter with the preference as a server hint,
// retry once with a simplified prompt when the caller opted in, then the
// opt-in paid fallback, then the terminal failure.
func (s *Service) generateLocalChain(ctx context.Context, rec *trace.Recorder, resp *Response, req *Request, hint string, candidates []backend.Candidate) (*Response, error) {
	var fail *failure

	endpoints, loadedModel := s.probeLocals(ctx, rec, candidates, hint)
	if len(endpoints) == 0 {
		fail = &failure{reason: s.offlineDiagnostic(candidates), code: errors.ErrCodeBackendUnavailable}
		s.logger.Warn("no local inference server reachable")
	} else {
		gen, err := s.registry.Generator(backend.KindLocalHTTP)
		if err != nil {
			fail = &failure{reason: "no local transport registered", code: errors.ErrCodeBackendUnavailable}
		} else {
			model := req.Model
			if model == "" {
				model = loadedModel
			}

			bReq := s.backendRequest(req, req.UserPrompt, req.Temperature)
			bReq.Model = model
			bReq.Endpoints = endpoints
			bReq.ServerHint = hint

			plan, det, stepFail := s.runStep(ctx, rec, resp, gen, localBackendID, stepLocal, bReq)
			if plan != nil {
				return s.finish(rec, resp, req, plan, det)
			}
			fail = stepFail

			if req.UseRetry && s.opts.Retry.Enabled {
				for attempt := 1; attempt <= s.opts.Retry.MaxAttempts; attempt++ {
					rec.Event(trace.EventTypeRetry, "retrying with simplified prompt").
						WithData("attempt", attempt).
						WithData("temperature", s.opts.Retry.Temperature)
					s.logger.Warn("retrying with simplified prompt", "attempt", attempt)

					retryReq := s.backendRequest(req, s.simplifiedPrompt(req), s.opts.Retry.Temperature)
					retryReq.Model = model
					retryReq.Endpoints = endpoints
					retryReq.ServerHint = hint

					plan, det, stepFail := s.runStep(ctx, rec, resp, gen, localBackendID, stepRetry, retryReq)
					if plan != nil {
						return s.finish(rec, resp, req, plan, det)
					}
					fail = stepFail
				}
			}
		}
	}

	if s.paidFallbackEligible(req) {
		if plan, det, pfail, attempted := s.paidFallback(ctx, rec, resp, req, candidates); attempted {
			if plan != nil {
				return s.finish(rec, resp, req, plan, det)
			}
			fail = pfail
		}
	}
	return s.exhausted(rec, resp, fail)
}

const localBackendID = "local"

// candidateModel returns the model pinned in configuration for the backend
// a step is about to call: the candidate with the matching id first, then
// the first candidate for the provider.
func candidateModel(candidates []backend.Candidate, backendID, provider string) string {
	for _, c := range candidates {
		if backendID != "" && strings.EqualFold(c.ID, backendID) && c.Model != "" {
			return c.Model
		}
	}
	if provider == "" {
		return ""
	}
	for _, c := range candidates {
		if strings.EqualFold(c.Provider, provider) && c.Model != "" {
			return c.Model
		}
	}
	return ""
}

// probeLocals annotates the run's candidate copy and returns the online
// endpoints in priority order plus the model to use when the request names
// none: the candidate's configured model, else its probed loaded model. A
// hinted candidate wins over the first online one.
func (s *Service) probeLocals(ctx context.Context, rec *trace.Recorder, candidates []backend.Candidate, hint string) ([]string, string) {
	hasLocal := false
	for _, c := range candidates {
		if c.Kind == backend.KindLocalHTTP {
			hasLocal = true
			break
		}
	}
	if !hasLocal {
		return nil, ""
	}

	outcomes := s.prober.Probe(ctx, candidates)

	var (
		endpoints     []string
		loadedModel   string
		hintedModel   string
		localOutcomes []probe.Outcome
		online        int
		checked       int
	)
	normalizedHint := backend.NormalizeBaseURL(hint)
	for i, c := range candidates {
		if c.Kind != backend.KindLocalHTTP {
			continue
		}
		checked++
		localOutcomes = append(localOutcomes, outcomes[i])
		if c.Availability != backend.AvailabilityOnline {
			continue
		}
		online++
		endpoints = append(endpoints, c.BaseURL)
		effective := c.Model
		if effective == "" {
			effective = c.LoadedModel
		}
		if loadedModel == "" {
			loadedModel = effective
		}
		if normalizedHint != "" && backend.NormalizeBaseURL(c.BaseURL) == normalizedHint {
			hintedModel = effective
		}
	}
	if hintedModel != "" {
		loadedModel = hintedModel
	}

	rec.Event(trace.EventTypeProbe, "probed local inference servers").
		WithData("checked", checked).
		WithData("online", online).
		WithData("outcomes", localOutcomes)
	s.logger.Debug("probed local inference servers", "checked", checked, "online", online)

	return endpoints, loadedModel
}

// offlineDiagnostic names the local candidates that were configured but
// unreachable, or reports that none were configured at all.
func (s *Service) offlineDiagnostic(candidates []backend.Candidate) string {
	var ids []string
	for _, c := range candidates {
		if c.Kind == backend.KindLocalHTTP {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return "no local inference backend configured"
	}
	return fmt.Sprintf("all local inference servers are offline (%s)", strings.Join(ids, ", "))
}

// paidFallback is chain step 5: one terminal cloud call, attempted only
// when the fallback provider's credential resolves. Returns attempted =
// false when the step could not run at all, so the caller keeps the more
// specific earlier diagnostic.
func (s *Service) paidFallback(ctx context.Context, rec *trace.Recorder, resp *Response, req *Request, candidates []backend.Candidate) (*buildplan.BuildPlan, extract.Details, *failure, bool) {
	provider := s.opts.PaidFallback.Provider

	requestKey := ""
	if req.PreferredProvider == "" || strings.EqualFold(req.PreferredProvider, provider) {
		requestKey = req.APIKey
	}
	key, origin, ok := s.resolver.Resolve(provider, requestKey)
	ev := rec.Event(trace.EventTypeCredential, "resolving credential for paid fallback").
		WithData("provider", provider).
		WithData("resolved", ok)
	if !ok {
		return nil, extract.Details{}, nil, false
	}
	ev.WithData("origin", origin)

	gen, err := s.registry.ProviderGenerator(provider)
	if err != nil {
		return nil, extract.Details{}, nil, false
	}

	rec.Event(trace.EventTypeFallback, "falling back to paid provider").WithBackend(provider)
	s.logger.Warn("falling back to paid provider", "provider", provider)

	bReq := s.backendRequest(req, req.UserPrompt, req.Temperature)
	bReq.APIKey = key
	if bReq.Model == "" {
		bReq.Model = candidateModel(candidates, "", provider)
	}
	plan, det, fail := s.runStep(ctx, rec, resp, gen, provider, stepPaidFallback, bReq)
	return plan, det, fail, true
}

// runStep performs one adapter call plus extraction. A nil plan with a
// non-nil failure means the step failed; the failure holds the most
// specific diagnostic for the terminal error.
func (s *Service) runStep(ctx context.Context, rec *trace.Recorder, resp *Response, gen backend.Generator, backendID, step string, bReq *backend.Request) (*buildplan.BuildPlan, extract.Details, *failure) {
	rec.Event(trace.EventTypeAttemptStart, "calling backend "+backendID).
		WithBackend(backendID).
		WithData("step", step)

	res := gen.Generate(ctx, bReq)
	resp.Attempts = append(resp.Attempts, res)

	ev := rec.Event(trace.EventTypeAttemptResult, "backend call finished").
		WithBackend(res.BackendID).
		WithData("step", step).
		WithDuration(res.Duration)
	if !res.OK() {
		ev.Level = "warning"
		ev.Error = res.Failure.Reason
		ev.WithData("failure_code", string(res.Failure.Code))
		s.logger.Warn("backend attempt failed",
			"backend", res.BackendID, "step", step,
			"code", string(res.Failure.Code), "reason", res.Failure.Reason)
		return nil, extract.Details{}, &failure{reason: res.Failure.Reason, code: res.Failure.Code}
	}
	s.logger.Debug("backend attempt succeeded",
		"backend", res.BackendID, "model", res.ModelID, "duration", res.Duration)

	plan, det := extract.Plan(res.Content)
	extractEv := rec.Event(trace.EventTypeExtract, "extracted plan from output").
		WithBackend(res.BackendID).
		WithData("fences_stripped", det.FencesStripped).
		WithData("unwrapped", det.Unwrapped)
	if plan == nil {
		extractEv.Level = "warning"
		extractEv.Message = "output was not a usable plan"
		extractEv.WithData("reason", det.Reason)
		reason := fmt.Sprintf("%s output was not a usable plan: %s", res.BackendID, det.Reason)
		s.logger.Warn("unusable generation output", "backend", res.BackendID, "reason", det.Reason)
		return nil, det, &failure{reason: reason, code: errors.ErrCodeUnparseableOutput}
	}
	extractEv.WithData("phases", len(plan.Phases)).WithData("packets", len(plan.Packets))
	if det.AssignedIDs > 0 {
		extractEv.WithData("assigned_ids", det.AssignedIDs)
	}
	if det.RepairedRefs > 0 {
		extractEv.WithData("repaired_refs", det.RepairedRefs)
	}

	resp.BackendUsed = res.BackendID
	resp.Endpoint = res.Endpoint
	resp.ModelUsed = res.ModelID
	if resp.ModelUsed == "" {
		resp.ModelUsed = bReq.Model
	}
	return plan, det, nil
}

// finish reconciles the generated plan against the caller's snapshot and
// seals the response.
func (s *Service) finish(rec *trace.Recorder, resp *Response, req *Request, plan *buildplan.BuildPlan, det extract.Details) (*Response, error) {
	resp.Extraction = det

	merged, stats := reconcile.Merge(plan.Packets, req.ExistingPackets, plan.FirstPhaseID())
	plan.Packets = merged
	repaired := plan.RepairPhaseRefs()

	mergeEv := rec.Event(trace.EventTypeMerge, "reconciled packets with existing snapshot").
		WithData("preserved", stats.Preserved).
		WithData("updated", stats.Updated).
		WithData("added", stats.Added).
		WithData("missing", stats.Missing)
	if repaired > 0 {
		mergeEv.WithData("repaired_refs", repaired)
	}

	resp.Plan = plan
	resp.Stats = stats
	if fp, err := buildplan.Fingerprint(plan); err == nil {
		resp.Fingerprint = fp
	}

	rec.Event(trace.EventTypeRunComplete, "plan generated").
		WithBackend(resp.BackendUsed).
		WithData("model", resp.ModelUsed).
		WithData("phases", len(plan.Phases)).
		WithData("packets", len(plan.Packets)).
		WithData("fingerprint", resp.Fingerprint)
	s.logger.Info("plan generated",
		"backend", resp.BackendUsed, "model", resp.ModelUsed,
		"phases", len(plan.Phases), "packets", len(plan.Packets),
		"missing", stats.Missing)
	return resp, nil
}

// exhausted is chain step 6: the terminal error carrying the most
// specific diagnostic collected along the chain.
func (s *Service) exhausted(rec *trace.Recorder, resp *Response, fail *failure) (*Response, error) {
	diagnostic := "no generation backend produced a usable plan"
	var cause error
	if fail != nil && fail.reason != "" {
		diagnostic = fail.reason
		code := fail.code
		if code == "" {
			code = errors.ErrCodeTransportFailure
		}
		cause = errors.New(code, fail.reason)
	}

	err := errors.NewAllBackendsExhaustedError(diagnostic)
	err.Cause = cause
	rec.Event(trace.EventTypeError, "all backends exhausted").WithError(err)
	s.logger.WithError(err).Error("all backends exhausted")
	return resp, err
}

func (s *Service) paidFallbackEligible(req *Request) bool {
	return req.AllowPaidFallback && s.opts.PaidFallback.Enabled
}

func (s *Service) backendRequest(req *Request, userPrompt string, temperature float64) *backend.Request {
	return &backend.Request{
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   userPrompt,
		Model:        req.Model,
		Temperature:  temperature,
		MaxTokens:    req.MaxTokens,
	}
}

func (s *Service) simplifiedPrompt(req *Request) string {
	if strings.TrimSpace(req.SimplifiedPrompt) != "" {
		return req.SimplifiedPrompt
	}
	return simplifiedDirective + "\n\n" + req.UserPrompt
}
