package celengine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"
)

var (
	envCache     = sync.Map{}
	programCache = sync.Map{}
)

// envKey identifies an environment by its variable names and declared types.
func envKey(attrs map[string]interface{}) string {
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(typeOf(attrs[k]).String())
		b.WriteByte(';')
	}
	return b.String()
}

func GetOrBuildEnv(attrs map[string]interface{}) (*cel.Env, error) {
	key := envKey(attrs)
	if v, ok := envCache.Load(key); ok {
		return v.(*cel.Env), nil
	}

	env, err := BuildCelEnvFromAttributes(attrs)
	if err == nil {
		envCache.Store(key, env)
	}

	return env, err
}

func typeOf(val interface{}) *cel.Type {
	switch v := val.(type) {
	case string:
		return cel.StringType
	case int, int32, int64:
		return cel.IntType
	case float64, float32:
		return cel.DoubleType
	case bool:
		return cel.BoolType
	case []interface{}:
		if len(v) > 0 {
			if _, ok := v[0].(map[string]interface{}); ok {
				return cel.ListType(cel.MapType(cel.StringType, cel.DynType))
			}
		}
		return cel.ListType(cel.DynType)
	case []string:
		return cel.ListType(cel.StringType)
	case []map[string]interface{}:
		return cel.ListType(cel.MapType(cel.StringType, cel.DynType))
	case map[string]interface{}, map[string]string:
		return cel.MapType(cel.StringType, cel.DynType)
	default:
		return cel.DynType
	}
}

func BuildCelEnvFromAttributes(attrs map[string]interface{}) (*cel.Env, error) {
	variables := make([]cel.EnvOption, 0, len(attrs))
	for key, val := range attrs {
		t := typeOf(val)
		if t == cel.DynType {
			zap.L().Debug("celengine: declaring dyn variable", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", val)))
		}
		variables = append(variables, cel.Variable(key, t))
	}

	return cel.NewEnv(variables...)
}

func ValidateExpression(env *cel.Env, expr string) error {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	switch out := ast.OutputType(); out.String() {
	case "bool", "dyn":
		return nil
	default:
		return fmt.Errorf("expression must yield bool, got %s", out)
	}
}

// ValidateCondition checks expr against the environment Match would build
// for attrs. An empty expression is valid.
func ValidateCondition(expr string, attrs map[string]interface{}) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	env, err := GetOrBuildEnv(attrs)
	if err != nil {
		return err
	}
	return ValidateExpression(env, expr)
}

func program(env *cel.Env, expr string) (cel.Program, error) {
	key := fmt.Sprintf("%p|%s", env, expr)
	if v, ok := programCache.Load(key); ok {
		return v.(cel.Program), nil
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	programCache.Store(key, prg)
	return prg, nil
}

func Evaluate(env *cel.Env, expr string, attrs map[string]interface{}) (bool, error) {
	val, err := EvaluateDynamic(env, expr, attrs)
	if err != nil {
		return false, err
	}

	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", val, val)
	}

	return b, nil
}

func EvaluateDynamic(env *cel.Env, expr string, attrs map[string]interface{}) (interface{}, error) {
	prg, err := program(env, expr)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(attrs)
	if err != nil {
		return nil, err
	}

	return out.Value(), nil
}

// Match builds (or reuses) an environment for attrs and evaluates expr.
// An empty expression always matches.
func Match(expr string, attrs map[string]interface{}) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	env, err := GetOrBuildEnv(attrs)
	if err != nil {
		return false, err
	}
	return Evaluate(env, expr, attrs)
}
