package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/logger"
)

// Surface tells the UI layer where an error should appear.
type Surface string

const (
	SurfaceNotification Surface = "notification"
	SurfaceInline       Surface = "inline"
	SurfaceModal        Surface = "modal"
)

// Decision is the routing outcome for one error occurrence.
type Decision struct {
	Surfaces  []Surface     `json:"surfaces"`
	Message   string        `json:"message"`
	Severity  string        `json:"severity"`
	Retry     bool          `json:"retry"`
	Backoff   time.Duration `json:"backoff"`
	Attempt   int           `json:"attempt"`
	Action    string        `json:"action,omitempty"`
	Sanitized bool          `json:"sanitized,omitempty"`
}

// routeRule pairs a CEL predicate with the routing it selects. Rules are
// evaluated in order; the first match wins.
type routeRule struct {
	name     string
	expr     string
	surfaces []Surface
	severity string
	retry    bool
	action   string
}

// The rule set encodes the propagation policy: validation stays inline,
// transport and timeout failures get a retry affordance, auth failures
// open the sign-in surface, quota failures offer an upgrade, security
// failures are sanitized and never retried.
var defaultRules = []routeRule{
	{
		name:     "batch-detail",
		expr:     `batch && failures > 1`,
		surfaces: []Surface{SurfaceNotification, SurfaceModal},
		severity: "error",
		action:   "view_details",
	},
	{
		name:     "validation-inline",
		expr:     `kind == "validation"`,
		surfaces: []Surface{SurfaceInline},
		severity: "warning",
	},
	{
		name:     "security-sanitized",
		expr:     `kind == "security"`,
		surfaces: []Surface{SurfaceNotification},
		severity: "error",
	},
	{
		name:     "auth-signin",
		expr:     `kind == "authentication"`,
		surfaces: []Surface{SurfaceNotification},
		severity: "error",
		action:   "sign_in",
	},
	{
		name:     "authorization-upgrade",
		expr:     `kind == "authorization"`,
		surfaces: []Surface{SurfaceNotification},
		severity: "warning",
		action:   "upgrade_plan",
	},
	{
		name:     "quota-upgrade",
		expr:     `kind == "quota"`,
		surfaces: []Surface{SurfaceNotification},
		severity: "warning",
		action:   "upgrade_plan",
	},
	{
		name:     "transient-retry",
		expr:     `(kind == "network" || kind == "timeout") && attempts < 3`,
		surfaces: []Surface{SurfaceNotification},
		severity: "warning",
		retry:    true,
		action:   "retry",
	},
	{
		name:     "transient-exhausted",
		expr:     `kind == "network" || kind == "timeout"`,
		surfaces: []Surface{SurfaceNotification},
		severity: "error",
	},
	{
		name:     "file-notification",
		expr:     `kind == "file"`,
		surfaces: []Surface{SurfaceNotification},
		severity: "error",
	},
	{
		name:     "fallback",
		expr:     `true`,
		surfaces: []Surface{SurfaceNotification},
		severity: "error",
	},
}

const (
	retryBackoffBase  = time.Second
	maxRetryAttempts  = 3
	attemptQuiescence = 30 * time.Second
)

// ErrorRouter translates raw errors into UI routing decisions. Rules are
// CEL predicates compiled once and cached; per-key attempt counters feed
// the retry backoff and reset after a quiet period.
type ErrorRouter struct {
	log   *logger.Logger
	env   *cel.Env
	rules []routeRule

	progMu sync.RWMutex
	progs  map[string]cel.Program

	attemptMu sync.Mutex
	attempts  map[string]*attemptState
}

type attemptState struct {
	count    int
	lastSeen time.Time
}

// NewErrorRouter builds the router with the default rule set.
func NewErrorRouter(log *logger.Logger) (*ErrorRouter, error) {
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("attempts", cel.IntType),
		cel.Variable("batch", cel.BoolType),
		cel.Variable("failures", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule environment: %w", err)
	}
	return &ErrorRouter{
		log:      log.WithService("ErrorRouter"),
		env:      env,
		rules:    defaultRules,
		progs:    make(map[string]cel.Program),
		attempts: make(map[string]*attemptState),
	}, nil
}

// Route decides where err surfaces. The key scopes the retry counter, so
// repeated failures of the same operation escalate while unrelated
// failures start fresh.
func (r *ErrorRouter) Route(key string, err error) Decision {
	return r.route(key, err, false, 0)
}

// RouteBatch decides for a batch run with the given failure count.
// Multiple failures collapse into one summary with a detail modal.
func (r *ErrorRouter) RouteBatch(key string, err error, failures int) Decision {
	return r.route(key, err, true, failures)
}

func (r *ErrorRouter) route(key string, err error, batch bool, failures int) Decision {
	kind := errdomain.KindOf(err)
	attempt := r.bumpAttempts(key)

	vars := map[string]any{
		"kind":     string(kind),
		"attempts": attempt,
		"batch":    batch,
		"failures": failures,
	}

	for _, rule := range r.rules {
		matched, evalErr := r.eval(rule.expr, vars)
		if evalErr != nil {
			r.log.Warn("routing rule failed, skipping", "rule", rule.name, "error", evalErr)
			continue
		}
		if !matched {
			continue
		}

		d := Decision{
			Surfaces: rule.surfaces,
			Message:  err.Error(),
			Severity: rule.severity,
			Retry:    rule.retry,
			Attempt:  attempt,
			Action:   rule.action,
		}
		if rule.retry {
			d.Backoff = retryBackoffBase * (1 << (attempt - 1))
		}
		if kind == errdomain.KindSecurity {
			d.Message = "A security check failed. The file was not processed."
			d.Sanitized = true
		}
		if batch && failures > 1 {
			d.Message = fmt.Sprintf("%d files failed to process", failures)
		}
		return d
	}

	// Unreachable while the fallback rule is present.
	return Decision{Surfaces: []Surface{SurfaceNotification}, Message: err.Error(), Severity: "error", Attempt: attempt}
}

// ResetAttempts clears the retry counter for a key, used after a
// successful retry.
func (r *ErrorRouter) ResetAttempts(key string) {
	r.attemptMu.Lock()
	delete(r.attempts, key)
	r.attemptMu.Unlock()
}

// bumpAttempts increments the per-key counter, capping at the retry
// limit and restarting after the quiescence window.
func (r *ErrorRouter) bumpAttempts(key string) int {
	r.attemptMu.Lock()
	defer r.attemptMu.Unlock()

	now := time.Now()
	st, ok := r.attempts[key]
	if !ok || now.Sub(st.lastSeen) > attemptQuiescence {
		st = &attemptState{}
		r.attempts[key] = st
	}
	if st.count < maxRetryAttempts {
		st.count++
	}
	st.lastSeen = now
	return st.count
}

func (r *ErrorRouter) eval(expr string, vars map[string]any) (bool, error) {
	r.progMu.RLock()
	prg, ok := r.progs[expr]
	r.progMu.RUnlock()

	if !ok {
		ast, issues := r.env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return false, fmt.Errorf("compile rule: %w", issues.Err())
		}
		var err error
		prg, err = r.env.Program(ast)
		if err != nil {
			return false, fmt.Errorf("build rule program: %w", err)
		}
		r.progMu.Lock()
		r.progs[expr] = prg
		r.progMu.Unlock()
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate rule: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule returned %T, want bool", out.Value())
	}
	return result, nil
}
