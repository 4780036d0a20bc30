// Package verify проверяет согласованность инвариантов и полноту сервисов.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"specproof/internal/dsl"
	"specproof/internal/metrics"
	"specproof/internal/smt"
	"specproof/internal/translate"
)

// MsgInconsistent — фиксированная диагностика для unsat на этапе согласованности.
const MsgInconsistent = "invariants are inconsistent: no satisfying assignment exists"

// ErrSolverFault — паника или ошибка внутри решателя.
var ErrSolverFault = errors.New("solver fault")

// Result — итог одного Verify. После возврата не меняется.
type Result struct {
	IsConsistent   bool     `json:"is_consistent"`
	IsComplete     bool     `json:"is_complete"`
	Counterexample string   `json:"counterexample,omitempty"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
}

// SolverFactory создаёт свежий решатель с заданным таймаутом.
type SolverFactory func(timeout time.Duration) smt.Solver

func defaultFactory(timeout time.Duration) smt.Solver {
	return smt.New(smt.WithTimeout(timeout))
}

// Verifier не хранит состояния между вызовами: каждый Verify строит свою трансляцию и свои решатели.
type Verifier struct {
	timeout   time.Duration
	newSolver SolverFactory
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(v *Verifier)

func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

func WithSolverFactory(f SolverFactory) Option {
	return func(v *Verifier) {
		v.newSolver = f
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

func New(opts ...Option) *Verifier {
	v := &Verifier{
		timeout:   smt.DefaultTimeout,
		newSolver: defaultFactory,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	if v.newSolver == nil {
		v.newSolver = defaultFactory
	}
	return v
}

// Verify прогоняет обе проверки. Ошибки и предупреждения накапливаются, а не обрывают проход;
// исключение — сбой на этапе согласованности: полнота без неё не проверяется.
func (v *Verifier) Verify(ctx context.Context, spec *dsl.Specification) *Result {
	res := &Result{IsConsistent: true, IsComplete: true, Errors: []string{}, Warnings: []string{}}
	log := v.logger
	if spec != nil {
		log = log.With("spec", spec.Name, "version", spec.Version)
	}

	tr, err := safeTranslate(spec)
	if err != nil {
		res.IsConsistent = false
		res.Errors = append(res.Errors, "verification error: "+err.Error())
		res.Counterexample = err.Error()
		v.metrics.ObserveVerification("error")
		log.Error("translation failed", "error", err)
		return res
	}

	gaps := tr.Unsupported()
	for _, g := range gaps {
		res.Warnings = append(res.Warnings, g.String())
	}
	v.metrics.AddUnsupported(len(gaps))

	v.checkConsistency(ctx, log, tr, res)
	if !res.IsConsistent {
		v.metrics.ObserveVerification("inconsistent")
		return res
	}

	v.checkCompleteness(ctx, log, spec, tr, res)
	if res.IsComplete {
		v.metrics.ObserveVerification("ok")
	} else {
		v.metrics.ObserveVerification("incomplete")
	}
	return res
}

func (v *Verifier) checkConsistency(ctx context.Context, log *slog.Logger, tr *translate.Translation, res *Result) {
	status, reason, err := v.check(ctx, "consistency", tr, tr.Invariants)
	log.Debug("phase finished", "phase", "consistency", "status", status.String(), "formulas", len(tr.Invariants))
	if err != nil {
		res.IsConsistent = false
		res.Errors = append(res.Errors, "verification error: "+err.Error())
		res.Counterexample = err.Error()
		log.Error("consistency check failed", "error", err)
		return
	}
	switch status {
	case smt.Sat:
		res.IsConsistent = true
	case smt.Unsat:
		res.IsConsistent = false
		res.Errors = append(res.Errors, MsgInconsistent)
		res.Counterexample = "solver returned unsat: invariants are incompatible"
	default:
		// оптимистичное значение по умолчанию остаётся; unknown — это «нет информации»
		res.Warnings = append(res.Warnings, withReason("consistency could not be determined within the solver timeout", reason))
		log.Warn("consistency indeterminate", "timeout", v.timeout, "reason", reason)
	}
}

func (v *Verifier) checkCompleteness(ctx context.Context, log *slog.Logger, spec *dsl.Specification, tr *translate.Translation, res *Result) {
	if len(spec.Services) == 0 {
		res.Warnings = append(res.Warnings, "no services for completeness check")
		return
	}
	for _, svc := range spec.Services {
		status, reason, err := v.check(ctx, "completeness", tr, tr.Invariants, tr.Preconditions[svc.Name])
		log.Debug("phase finished", "phase", "completeness", "service", svc.Name, "status", status.String())
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Service «%s»: %v", svc.Name, err))
			log.Warn("service check failed", "service", svc.Name, "error", err)
			continue
		}
		switch status {
		case smt.Unsat:
			res.IsComplete = false
			res.Errors = append(res.Errors, fmt.Sprintf("Service «%s»: preconditions incompatible with invariants", svc.Name))
		case smt.Unknown:
			res.Warnings = append(res.Warnings, withReason(fmt.Sprintf("Service «%s»: could not verify within the solver timeout", svc.Name), reason))
		}
	}
}

// check собирает свежий решатель из групп формул и задаёт один вопрос.
// Паника решателя превращается в ошибку. reason заполнен только для Unknown.
func (v *Verifier) check(ctx context.Context, phase string, tr *translate.Translation, groups ...[]smt.Formula) (status smt.Status, reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, reason, err = smt.Unknown, "", fmt.Errorf("%w: %v", ErrSolverFault, r)
		}
	}()

	s := v.newSolver(v.timeout)
	tr.DeclareAll(s)
	for _, g := range groups {
		s.Assert(g...)
	}
	start := time.Now()
	status, err = s.Check(ctx)
	v.metrics.ObserveCheck(phase, status.String(), time.Since(start))
	if err != nil {
		return smt.Unknown, "", fmt.Errorf("%w: %v", ErrSolverFault, err)
	}
	if status == smt.Unknown {
		reason = smt.ReasonOf(s)
	}
	return status, reason, nil
}

func withReason(msg, reason string) string {
	if reason == "" {
		return msg
	}
	return msg + " (" + reason + ")"
}

func safeTranslate(spec *dsl.Specification) (tr *translate.Translation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("translate: %v", r)
		}
	}()
	if spec == nil {
		return nil, errors.New("nil specification")
	}
	return translate.Translate(spec), nil
}
