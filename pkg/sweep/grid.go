/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

package sweep

import (
	"strings"

	apperrors "github.com/eleutherai/neoxctl/pkg/errors"
)

// Param is one swept hyperparameter and its candidate values.
type Param struct {
	Name   string
	Values []string
}

// Setting is a single name=value assignment within a trial.
type Setting struct {
	Name  string
	Value string
}

// Trial is one point in the sweep grid, in parameter declaration order.
type Trial []Setting

// Args renders the trial as deepy.py override arguments.
func (t Trial) Args() string {
	parts := make([]string, 0, len(t))
	for _, s := range t {
		parts = append(parts, "--"+s.Name+" "+s.Value)
	}
	return strings.Join(parts, " ")
}

// ParseParam parses a --param flag value of the form "name=v1,v2,...".
func ParseParam(raw string) (Param, error) {
	name, values, ok := strings.Cut(raw, "=")
	if !ok || name == "" {
		return Param{}, apperrors.Newf(apperrors.ErrCodeInvalidArgument,
			"parameter %q must have the form name=value[,value...]", raw)
	}
	var parsed []string
	for _, v := range strings.Split(values, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		parsed = append(parsed, v)
	}
	if len(parsed) == 0 {
		return Param{}, apperrors.Newf(apperrors.ErrCodeInvalidArgument,
			"parameter %q has no values", name)
	}
	return Param{Name: name, Values: parsed}, nil
}

// ParseParams parses all --param flag values, rejecting duplicates.
func ParseParams(raw []string) ([]Param, error) {
	params := make([]Param, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		p, err := ParseParam(r)
		if err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, apperrors.Newf(apperrors.ErrCodeInvalidArgument,
				"parameter %q given more than once", p.Name)
		}
		seen[p.Name] = true
		params = append(params, p)
	}
	return params, nil
}

// Expand produces the full cross product of the parameter grid.
// Trials come out in a stable order: the last declared parameter
// varies fastest. An empty grid yields a single empty trial.
func Expand(params []Param) []Trial {
	total := 1
	for _, p := range params {
		total *= len(p.Values)
	}

	trials := make([]Trial, 0, total)
	for i := 0; i < total; i++ {
		trial := make(Trial, len(params))
		idx := i
		for j := len(params) - 1; j >= 0; j-- {
			p := params[j]
			trial[j] = Setting{Name: p.Name, Value: p.Values[idx%len(p.Values)]}
			idx /= len(p.Values)
		}
		trials = append(trials, trial)
	}
	return trials
}
