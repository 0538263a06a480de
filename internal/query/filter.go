package query

import (
	"strings"
	"time"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/config"
)

// FilterTranslator turns CQL2-JSON filter expressions into predicate
// fragments, validating every property reference against the queryable
// registry.
//
// Supported operators: =, <>, <, <=, >, >=, in, like, isNull, combined with
// and/or/not, arbitrarily nested.
type FilterTranslator struct {
	registry *config.QueryableRegistry
}

// NewFilterTranslator creates a translator backed by the given registry.
func NewFilterTranslator(registry *config.QueryableRegistry) *FilterTranslator {
	return &FilterTranslator{registry: registry}
}

// Translate converts a decoded CQL2-JSON expression into a fragment tree.
// A nil filter produces a nil fragment.
func (t *FilterTranslator) Translate(filter any) (*Fragment, error) {
	if filter == nil {
		return nil, nil
	}
	expr, ok := filter.(map[string]any)
	if !ok {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "filter must be a JSON object")
	}
	return t.translateExpression(expr)
}

func (t *FilterTranslator) translateExpression(expr map[string]any) (*Fragment, error) {
	opVal, ok := expr["op"]
	if !ok {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "filter expression missing 'op'")
	}
	op, ok := opVal.(string)
	if !ok {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "'op' must be a string")
	}

	argsVal, ok := expr["args"]
	if !ok {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "filter expression missing 'args'")
	}
	args, ok := argsVal.([]any)
	if !ok {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "'args' must be an array")
	}

	switch strings.ToLower(op) {
	case "and":
		return t.translateLogical(KindAnd, args)
	case "or":
		return t.translateLogical(KindOr, args)
	case "not":
		if len(args) != 1 {
			return nil, catalog.Errorf(catalog.KindInvalidFilterType, "'not' requires exactly 1 argument")
		}
		child, err := t.translateArg(args[0])
		if err != nil {
			return nil, err
		}
		return Not(child), nil
	case "=", "eq":
		return t.translateComparison(OpEq, args)
	case "<>", "!=", "neq":
		return t.translateComparison(OpNeq, args)
	case "<", "lt":
		return t.translateComparison(OpLt, args)
	case "<=", "lte":
		return t.translateComparison(OpLte, args)
	case ">", "gt":
		return t.translateComparison(OpGt, args)
	case ">=", "gte":
		return t.translateComparison(OpGte, args)
	case "in":
		return t.translateIn(args)
	case "like":
		return t.translateLike(args)
	case "isnull":
		return t.translateIsNull(args)
	default:
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "operator %q not supported", op)
	}
}

func (t *FilterTranslator) translateLogical(kind FragmentKind, args []any) (*Fragment, error) {
	if len(args) == 0 {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "%q requires at least one argument", kind)
	}
	children := make([]*Fragment, 0, len(args))
	for _, arg := range args {
		child, err := t.translateArg(arg)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return &Fragment{Kind: kind, Children: children}, nil
}

func (t *FilterTranslator) translateArg(arg any) (*Fragment, error) {
	expr, ok := arg.(map[string]any)
	if !ok {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "logical arguments must be filter expressions")
	}
	return t.translateExpression(expr)
}

func (t *FilterTranslator) translateComparison(op Op, args []any) (*Fragment, error) {
	if len(args) != 2 {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "%q requires exactly 2 arguments", op)
	}
	q, err := t.resolveProperty(args[0])
	if err != nil {
		return nil, err
	}
	value, err := coerceOperand(q, args[1])
	if err != nil {
		return nil, err
	}
	return &Fragment{Kind: KindCompare, Property: q, Op: op, Value: value}, nil
}

func (t *FilterTranslator) translateIn(args []any) (*Fragment, error) {
	if len(args) != 2 {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "'in' requires exactly 2 arguments")
	}
	q, err := t.resolveProperty(args[0])
	if err != nil {
		return nil, err
	}
	list, ok := args[1].([]any)
	if !ok {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "second argument of 'in' must be an array")
	}
	values := make([]any, 0, len(list))
	for _, raw := range list {
		value, err := coerceOperand(q, raw)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return &Fragment{Kind: KindCompare, Property: q, Op: OpIn, Value: values}, nil
}

func (t *FilterTranslator) translateLike(args []any) (*Fragment, error) {
	if len(args) != 2 {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "'like' requires exactly 2 arguments")
	}
	q, err := t.resolveProperty(args[0])
	if err != nil {
		return nil, err
	}
	if q.Type != config.TypeString {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType,
			"'like' requires a string property, %q is %s", q.Name, q.Type)
	}
	pattern, ok := args[1].(string)
	if !ok {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "'like' pattern must be a string")
	}
	return &Fragment{Kind: KindCompare, Property: q, Op: OpLike, Value: pattern}, nil
}

func (t *FilterTranslator) translateIsNull(args []any) (*Fragment, error) {
	if len(args) != 1 {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "'isNull' requires exactly 1 argument")
	}
	q, err := t.resolveProperty(args[0])
	if err != nil {
		return nil, err
	}
	return &Fragment{Kind: KindCompare, Property: q, Op: OpIsNull}, nil
}

// resolveProperty extracts a {"property": name} reference and looks it up in
// the registry. Unknown names fail with UnknownProperty rather than silently
// matching nothing.
func (t *FilterTranslator) resolveProperty(arg any) (*config.Queryable, error) {
	ref, ok := arg.(map[string]any)
	if !ok {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "first argument must be a property reference")
	}
	nameVal, ok := ref["property"]
	if !ok {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "property reference missing 'property'")
	}
	name, ok := nameVal.(string)
	if !ok {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType, "'property' must be a string")
	}
	q := t.registry.Get(name)
	if q == nil {
		return nil, catalog.Errorf(catalog.KindUnknownProperty, "property %q is not queryable", name)
	}
	if q.Type == config.TypeGeometry {
		return nil, catalog.Errorf(catalog.KindInvalidFilterType,
			"property %q is a geometry; use bbox or intersects", name)
	}
	return q, nil
}

// coerceOperand checks the operand against the property's declared type and
// normalizes it: JSON numbers become float64, datetimes become time.Time.
func coerceOperand(q *config.Queryable, raw any) (any, error) {
	switch q.Type {
	case config.TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, typeMismatch(q, raw)
		}
		return s, nil
	case config.TypeNumber, config.TypeInteger:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		default:
			return nil, typeMismatch(q, raw)
		}
	case config.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, typeMismatch(q, raw)
		}
		return b, nil
	case config.TypeDatetime:
		s, ok := raw.(string)
		if !ok {
			return nil, typeMismatch(q, raw)
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, catalog.Wrap(catalog.KindInvalidFilterType, err,
				"property %q operand is not RFC 3339", q.Name)
		}
		return ts.UTC(), nil
	default:
		return nil, catalog.Errorf(catalog.KindInvalidFilterType,
			"property %q has unfilterable type %s", q.Name, q.Type)
	}
}

func typeMismatch(q *config.Queryable, raw any) error {
	return catalog.Errorf(catalog.KindInvalidFilterType,
		"property %q expects %s operand, got %T", q.Name, q.Type, raw)
}
