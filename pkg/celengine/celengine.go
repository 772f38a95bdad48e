package celengine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

var envCache = sync.Map{}

// GetOrBuildEnv caches CEL environments by the sorted key set of the
// attribute map; achievement contexts for the same action share a shape.
func GetOrBuildEnv(attrs map[string]interface{}) (*cel.Env, error) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cacheKey := strings.Join(keys, ",")

	if v, ok := envCache.Load(cacheKey); ok {
		return v.(*cel.Env), nil
	}

	env, err := BuildEnvFromAttributes(attrs)
	if err == nil {
		envCache.Store(cacheKey, env)
	}

	return env, err
}

// BuildEnvFromAttributes declares one CEL variable per attribute, typed
// from the runtime value.
func BuildEnvFromAttributes(attrs map[string]interface{}) (*cel.Env, error) {
	var variables []cel.EnvOption

	for key, val := range attrs {
		switch val.(type) {
		case string:
			variables = append(variables, cel.Variable(key, cel.StringType))
		case int, int64, float64, float32:
			variables = append(variables, cel.Variable(key, cel.IntType))
		case bool:
			variables = append(variables, cel.Variable(key, cel.BoolType))
		case []interface{}:
			variables = append(variables, cel.Variable(key, cel.ListType(cel.DynType)))
		case map[string]interface{}:
			variables = append(variables, cel.Variable(key, cel.MapType(cel.StringType, cel.DynType)))
		default:
			variables = append(variables, cel.Variable(key, cel.DynType))
		}
	}

	return cel.NewEnv(variables...)
}

// Evaluate compiles and runs a boolean expression against the attributes.
func Evaluate(env *cel.Env, expr string, attrs map[string]interface{}) (bool, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, issues.Err()
	}

	prg, err := env.Program(ast)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(attrs)
	if err != nil {
		return false, err
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}

	return b, nil
}
