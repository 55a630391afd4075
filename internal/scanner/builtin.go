package scanner

import (
	"context"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intel-engine/internal/resilience"
)

// RegisterBuiltins adds the local, network-free capabilities used by the CLI
// and as executable defaults in development setups.
func RegisterBuiltins(r *Registry) {
	r.Register("email_validation", func() Scanner { return &emailValidation{} })
	r.Register("domain_parse", func() Scanner { return &domainParse{} })
	r.Register("target_echo", func() Scanner { return &targetEcho{} })
}

// emailValidation checks email syntax and classifies the domain.
type emailValidation struct{}

func (s *emailValidation) Name() string { return "email_validation" }

func (s *emailValidation) Execute(ctx context.Context, target string, _ map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(target))
	if err != nil {
		return nil, eris.Wrapf(err, "email_validation: parse %q", target)
	}

	_, domain, _ := strings.Cut(addr.Address, "@")
	return map[string]any{
		"email":     strings.ToLower(addr.Address),
		"domain":    strings.ToLower(domain),
		"validated": true,
	}, nil
}

// domainParse extracts the host from a URL-ish target.
type domainParse struct{}

func (s *domainParse) Name() string { return "domain_parse" }

func (s *domainParse) Execute(ctx context.Context, target string, _ map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(strings.ToLower(target))
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("domain_parse: invalid target %q", target)
	}

	return map[string]any{
		"url":  raw,
		"host": u.Hostname(),
	}, nil
}

// targetEcho returns the target unchanged. Useful for wiring checks and for
// feeding pre-collected mentions through a workflow.
type targetEcho struct{}

func (s *targetEcho) Name() string { return "target_echo" }

func (s *targetEcho) Execute(ctx context.Context, target string, options map[string]any) (any, error) {
	if delay, ok := options["delay_ms"].(int); ok && delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(delay) * time.Millisecond):
		}
	}
	// fail forces a retryable error so operators can exercise the retry and
	// circuit breaker paths end to end.
	if fail, ok := options["fail"].(bool); ok && fail {
		return nil, resilience.NewTransientError(eris.Errorf("target_echo: forced failure for %q", target))
	}
	return map[string]any{"value": target}, nil
}
