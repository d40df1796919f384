package transform

import (
	"errors"
	"fmt"
)

// Rule operations.
const (
	OpSet    = "set"
	OpRemove = "remove"
	OpRename = "rename"
)

// Rule is a declarative edit of a JSON value. Paths use dot notation with
// array indexes, e.g. "users[0].name".
type Rule struct {
	Op    string      `yaml:"op" json:"op"`
	Path  string      `yaml:"path" json:"path"`
	Value interface{} `yaml:"value,omitempty" json:"value,omitempty"`
	To    string      `yaml:"to,omitempty" json:"to,omitempty"`
}

// Validate checks the operation and paths.
func (r Rule) Validate() error {
	if len(steps(parseFieldPath(r.Path))) == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidFieldPath, r.Path)
	}
	switch r.Op {
	case OpSet, OpRemove:
		return nil
	case OpRename:
		if len(steps(parseFieldPath(r.To))) == 0 {
			return fmt.Errorf("%w: rename target %q", ErrInvalidFieldPath, r.To)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, r.Op)
	}
}

// apply runs the rule against v and returns the possibly replaced root.
func (r Rule) apply(v interface{}) (interface{}, error) {
	switch r.Op {
	case OpSet:
		return setValueAtPath(v, r.Path, deepCopyValue(r.Value))
	case OpRemove:
		return deleteValueAtPath(v, r.Path)
	case OpRename:
		value, err := getValueAtPath(v, r.Path)
		if err != nil {
			return nil, err
		}
		if v, err = deleteValueAtPath(v, r.Path); err != nil {
			return nil, err
		}
		return setValueAtPath(v, r.To, value)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, r.Op)
	}
}

// Rules is an ordered list of rules.
type Rules []Rule

// Validate checks every rule.
func (rs Rules) Validate() error {
	for i, r := range rs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// Apply runs the rules in order against v. Rules whose source path does
// not exist are skipped.
func (rs Rules) Apply(v interface{}) (interface{}, error) {
	for i, r := range rs {
		out, err := r.apply(v)
		if errors.Is(err, ErrFieldNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s %s): %w", i, r.Op, r.Path, err)
		}
		v = out
	}
	return v, nil
}

// Func adapts the rules to a Func. A rule that cannot be applied leaves
// the value as the previous rules produced it.
func (rs Rules) Func() Func {
	if len(rs) == 0 {
		return nil
	}
	return func(v interface{}) interface{} {
		for _, r := range rs {
			if out, err := r.apply(v); err == nil {
				v = out
			}
		}
		return v
	}
}
