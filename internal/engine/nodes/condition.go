package nodes

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("condition", newCondition)
}

// Op is a condition node's comparison operator.
type Op string

const (
	OpEq           Op = "eq"
	OpNeq          Op = "neq"
	OpGt           Op = "gt"
	OpGte          Op = "gte"
	OpLt           Op = "lt"
	OpLte          Op = "lte"
	OpIn           Op = "in"
	OpNin          Op = "nin"
	OpContains     Op = "contains"
	OpNotContains  Op = "not_contains"
	OpIsEmpty      Op = "is_empty"
	OpIsNotEmpty   Op = "is_not_empty"
	OpIsTrue       Op = "is_true"
	OpIsFalse      Op = "is_false"
)

var numericOps = map[Op]bool{OpGt: true, OpGte: true, OpLt: true, OpLte: true}
var stringOps = map[Op]bool{OpContains: true, OpNotContains: true}
var collectionOps = map[Op]bool{OpIn: true, OpNin: true}
var unaryOps = map[Op]bool{OpIsEmpty: true, OpIsNotEmpty: true, OpIsTrue: true, OpIsFalse: true}

// branchCond is one declared branch: first match wins, in declaration
// order — which is why branches are held in a slice, not a map.
type branchCond struct {
	key      string
	left     engine.ValueRef
	operator Op
	right    engine.ValueRef
}

// Condition evaluates its declared branches in order and follows the first
// whose predicate holds. If none match, its next is legitimately absent —
// that terminates this execution path, not a failure. Unlike the
// original's right-operand handling (which silently treated a missing
// right operand as false for binary operators), a missing right operand on
// a non-unary operator always raises MissingInput.
type Condition struct {
	engine.Base
	branches []branchCond
	host     engine.Host
	chosen   string
	hasChosen bool
}

func newCondition(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	raw, _ := doc.Data["conditions"].([]interface{})
	branches := make([]branchCond, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		key, _ := m["key"].(string)
		value, _ := m["value"].(map[string]interface{})
		left, _ := decodeRef(value["left"])
		right, _ := decodeRef(value["right"])
		op, _ := value["operator"].(string)
		branches = append(branches, branchCond{key: key, left: left, operator: Op(op), right: right})
	}
	return &Condition{
		Base:     engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		branches: branches,
		host:     host,
	}, nil
}

func (n *Condition) Run(ctx context.Context) (interface{}, error) {
	for _, b := range n.branches {
		match, err := n.evaluate(b)
		if err != nil {
			return nil, err
		}
		if match {
			n.chosen, n.hasChosen = b.key, true
			break
		}
	}
	if err := n.updateNext(); err != nil {
		return nil, err
	}
	return n.hasChosen, nil
}

func (n *Condition) evaluate(b branchCond) (bool, error) {
	left, err := engine.ResolveValue(n.host, b.left)
	if err != nil {
		return false, engine.ConditionError(n.ID(), "failed to resolve left operand", err)
	}

	if b.operator == "" {
		return truthy(left), nil
	}
	if unaryOps[b.operator] {
		return n.evalUnary(b.operator, left)
	}

	if left == nil {
		return false, engine.MissingInputError(n.ID(), "left")
	}

	right, err := engine.ResolveValue(n.host, b.right)
	if err != nil {
		var engErr *engine.Error
		if errors.As(err, &engErr) && engErr.Kind == engine.ErrMissingInput {
			return false, engine.MissingInputError(n.ID(), "right")
		}
		return false, engine.ConditionError(n.ID(), "failed to resolve right operand", err)
	}
	if right == nil {
		return false, engine.MissingInputError(n.ID(), "right")
	}

	if err := validateOperands(b.operator, left, right); err != nil {
		return false, err
	}
	return n.evalBinary(b.operator, left, right)
}

func (n *Condition) evalUnary(op Op, left interface{}) (bool, error) {
	switch op {
	case OpIsEmpty:
		return isEmptyValue(left), nil
	case OpIsNotEmpty:
		return !isEmptyValue(left), nil
	case OpIsTrue:
		b, ok := left.(bool)
		return ok && b, nil
	case OpIsFalse:
		b, ok := left.(bool)
		return ok && !b, nil
	}
	return false, engine.ConditionError(n.ID(), "unsupported unary operator: "+string(op), nil)
}

func validateOperands(op Op, left, right interface{}) error {
	if numericOps[op] {
		if !isNumeric(left) || !isNumeric(right) {
			return engine.TypeViolationError("", fmt.Sprintf("operator %s requires numeric operands", op))
		}
	}
	if stringOps[op] {
		if _, ok := left.(string); !ok {
			return engine.TypeViolationError("", fmt.Sprintf("operator %s requires string operands", op))
		}
		if _, ok := right.(string); !ok {
			return engine.TypeViolationError("", fmt.Sprintf("operator %s requires string operands", op))
		}
	}
	if collectionOps[op] {
		rv := reflect.ValueOf(right)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		default:
			return engine.TypeViolationError("", fmt.Sprintf("operator %s requires an iterable right operand", op))
		}
	}
	return nil
}

func (n *Condition) evalBinary(op Op, left, right interface{}) (bool, error) {
	switch op {
	case OpEq:
		return reflect.DeepEqual(left, right), nil
	case OpNeq:
		return !reflect.DeepEqual(left, right), nil
	case OpGt, OpGte, OpLt, OpLte:
		lf, rf := toFloat(left), toFloat(right)
		switch op {
		case OpGt:
			return lf > rf, nil
		case OpGte:
			return lf >= rf, nil
		case OpLt:
			return lf < rf, nil
		default:
			return lf <= rf, nil
		}
	case OpContains:
		return strings.Contains(left.(string), right.(string)), nil
	case OpNotContains:
		return !strings.Contains(left.(string), right.(string)), nil
	case OpIn:
		return member(left, right), nil
	case OpNin:
		return !member(left, right), nil
	}
	return false, engine.ConditionError(n.ID(), "unsupported operator: "+string(op), nil)
}

func (n *Condition) updateNext() error {
	if !n.hasChosen {
		n.ClearNext()
		n.host.Bus().Emit(engine.EventMessage, engine.Message{
			NodeID: n.ID(), Level: engine.MessageWarning, Text: "no branch selected",
		})
		return nil
	}
	for _, t := range n.Transitions() {
		if t.Port == n.chosen {
			n.SetNext(t.Target)
			n.host.Bus().Emit(engine.EventMessage, engine.Message{
				NodeID: n.ID(), Level: engine.MessageInfo, Text: "choose branch: " + n.chosen,
			})
			return nil
		}
	}
	n.ClearNext()
	return nil
}

func truthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return !isEmptyValue(v)
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}

func member(item, collection interface{}) bool {
	rv := reflect.ValueOf(collection)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if reflect.DeepEqual(rv.Index(i).Interface(), item) {
				return true
			}
		}
		return false
	case reflect.Map:
		for _, k := range rv.MapKeys() {
			if reflect.DeepEqual(k.Interface(), item) {
				return true
			}
		}
		return false
	case reflect.String:
		s, ok := item.(string)
		return ok && strings.Contains(rv.String(), s)
	default:
		return false
	}
}
