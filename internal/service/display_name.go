package service

import (
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
)

// DefaultDisplayNameExpr prefers the provider's full name and falls back to the email.
const DefaultDisplayNameExpr = "user_metadata.full_name || full_name || email"

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// DisplayNameExtractor derives a display name from a principal with a JMESPath expression.
type DisplayNameExtractor struct {
	expr string
	eval JMESPathEvaluator
}

// NewDisplayNameExtractor validates expr. An empty expr selects DefaultDisplayNameExpr.
func NewDisplayNameExtractor(expr string, eval JMESPathEvaluator) (*DisplayNameExtractor, error) {
	if eval == nil {
		eval = jmespathLibEvaluator{}
	}
	if strings.TrimSpace(expr) == "" {
		expr = DefaultDisplayNameExpr
	}
	if err := eval.Validate(expr); err != nil {
		return nil, fmt.Errorf("compile display name expression %q: %w", expr, err)
	}
	return &DisplayNameExtractor{expr: expr, eval: eval}, nil
}

// Extract evaluates the expression against the principal. A missing, blank or
// non-string result yields the email, then the id.
func (d *DisplayNameExtractor) Extract(p domainauth.Principal) string {
	if d != nil {
		if name := d.evaluate(p); name != "" {
			return name
		}
	}
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}

func (d *DisplayNameExtractor) evaluate(p domainauth.Principal) string {
	meta := map[string]any{}
	for k, v := range p.Metadata {
		meta[k] = v
	}
	doc := map[string]any{
		"id":            p.ID,
		"email":         p.Email,
		"user_metadata": meta,
	}
	out, err := d.eval.Evaluate(d.expr, doc)
	if err != nil {
		return ""
	}
	s, ok := out.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
