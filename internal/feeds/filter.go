package feeds

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL expression evaluated per event. A nil or disabled
// filter matches everything. Start markers always pass so catch-up readers
// keep their floor.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// CompileFilter compiles expr. Empty expressions yield a disabled filter.
func CompileFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("seq", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON payload for field filtering
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return &Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the filter against one event. Evaluation errors reject the
// event.
func (f *Filter) Match(ev Event) bool {
	if f == nil || !f.enabled || ev.Kind == KindStart {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(ev.Body, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"seq":    int64(ev.Seq),
		"size":   int64(len(ev.Body)),
		"text":   string(ev.Body),
		"json":   jsonObj,
		"now_ms": time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Apply filters a slice in order.
func (f *Filter) Apply(evs []Event) []Event {
	if f == nil || !f.enabled {
		return evs
	}
	out := evs[:0]
	for _, ev := range evs {
		if f.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}
