package achievement

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"refhire-rewards/pkg/celengine"
	"refhire-rewards/pkg/errutil"
)

// An evaluator inspects one incoming event against the stored progress,
// mutates the progress counters in place, and reports whether the
// requirement is now satisfied. Adding a requirement kind means adding one
// entry here.
type evaluatorFunc func(req *Requirement, p *UserAchievementProgress, event map[string]any) (bool, error)

var evaluators = map[string]evaluatorFunc{
	"count_at_least":    evalCountAtLeast,
	"distinct_at_least": evalDistinctAtLeast,
	"field_complete":    evalFieldComplete,
	"expression":        evalExpression,
}

func evaluate(req *Requirement, p *UserAchievementProgress, event map[string]any) (bool, error) {
	eval, ok := evaluators[req.Kind]
	if !ok {
		return false, errutil.Internal(fmt.Sprintf("unknown requirement kind %q", req.Kind), nil)
	}
	return eval(req, p, event)
}

// requirementTarget is the progress ceiling shown to users as "x / y".
func requirementTarget(req *Requirement) int64 {
	switch req.Kind {
	case "count_at_least", "distinct_at_least":
		if req.Threshold > 0 {
			return req.Threshold
		}
	}
	return 1
}

func evalCountAtLeast(req *Requirement, p *UserAchievementProgress, _ map[string]any) (bool, error) {
	if req.Threshold <= 0 {
		return false, errutil.Internal("count_at_least requires a positive threshold", nil)
	}
	p.Progress++
	return p.Progress >= req.Threshold, nil
}

type distinctMeta struct {
	Seen []string `json:"seen"`
}

// evalDistinctAtLeast counts distinct values of the event field, carrying
// the seen set in the progress meta column. Repeated values advance
// nothing.
func evalDistinctAtLeast(req *Requirement, p *UserAchievementProgress, event map[string]any) (bool, error) {
	if req.Threshold <= 0 {
		return false, errutil.Internal("distinct_at_least requires a positive threshold", nil)
	}
	if req.Field == "" {
		return false, errutil.Internal("distinct_at_least requires a field", nil)
	}

	value := fmt.Sprintf("%v", event[req.Field])
	if value == "" || value == "<nil>" {
		return p.Progress >= req.Threshold, nil
	}

	var meta distinctMeta
	if len(p.Meta) > 0 {
		if err := json.Unmarshal(p.Meta, &meta); err != nil {
			return false, errutil.Internal("malformed progress meta", err)
		}
	}

	for _, s := range meta.Seen {
		if s == value {
			return p.Progress >= req.Threshold, nil
		}
	}
	meta.Seen = append(meta.Seen, value)

	b, err := json.Marshal(meta)
	if err != nil {
		return false, errutil.Internal("encode progress meta", err)
	}
	p.Meta = datatypes.JSON(b)
	p.Progress = int64(len(meta.Seen))

	return p.Progress >= req.Threshold, nil
}

// evalFieldComplete fires when the event reports the named field as
// present and truthy, e.g. profile sections.
func evalFieldComplete(req *Requirement, p *UserAchievementProgress, event map[string]any) (bool, error) {
	if req.Field == "" {
		return false, errutil.Internal("field_complete requires a field", nil)
	}

	v, ok := event[req.Field]
	if !ok || v == nil {
		return false, nil
	}

	done := false
	switch t := v.(type) {
	case bool:
		done = t
	case string:
		done = t != ""
	case float64:
		done = t != 0
	case int, int64:
		done = fmt.Sprintf("%v", t) != "0"
	default:
		done = true
	}

	if done {
		p.Progress = p.MaxProgress
	}
	return done, nil
}

func evalExpression(req *Requirement, p *UserAchievementProgress, event map[string]any) (bool, error) {
	if req.Expression == "" {
		return false, errutil.Internal("expression requirement without expression", nil)
	}

	env, err := celengine.GetOrBuildEnv(event)
	if err != nil {
		return false, errutil.Internal("build expression environment", err)
	}

	ok, err := celengine.Evaluate(env, req.Expression, event)
	if err != nil {
		return false, errutil.Internal("evaluate requirement expression", err)
	}

	if ok {
		p.Progress = p.MaxProgress
	}
	return ok, nil
}
