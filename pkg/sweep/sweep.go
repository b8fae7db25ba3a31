/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

// Package sweep renders SLURM array-job submission scripts for
// hyperparameter sweeps over gpt-neox training runs.
package sweep

import (
	"reflect"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	apperrors "github.com/eleutherai/neoxctl/pkg/errors"
)

// Config describes one sweep submission. Fields are addressable through
// --set overrides using snake_case dot-free paths (e.g. "time_limit").
type Config struct {
	// JobName is the SLURM job name.
	JobName string
	// Account is the SLURM account to charge, empty to omit.
	Account string
	// Partition is the SLURM partition, empty for the cluster default.
	Partition string
	// Nodes is the node count per trial.
	Nodes int
	// GPUsPerNode is requested via --gres=gpu:N.
	GPUsPerNode int
	// TimeLimit is the SLURM walltime (e.g. "24:00:00").
	TimeLimit string
	// TrainConfig is the base gpt-neox config passed to deepy.py.
	TrainConfig string
	// WorkDir is the directory the job runs from.
	WorkDir string
}

// DefaultConfig returns the baseline sweep configuration.
func DefaultConfig() Config {
	return Config{
		JobName:     "neox-sweep",
		Nodes:       1,
		GPUsPerNode: 8,
		TimeLimit:   "24:00:00",
		TrainConfig: "configs/sweep.yml",
		WorkDir:     "/app",
	}
}

func (c Config) validate() error {
	if c.Nodes < 1 {
		return apperrors.Newf(apperrors.ErrCodeInvalidArgument, "nodes must be a positive integer, got %d", c.Nodes)
	}
	if c.GPUsPerNode < 1 {
		return apperrors.Newf(apperrors.ErrCodeInvalidArgument, "gpus_per_node must be a positive integer, got %d", c.GPUsPerNode)
	}
	if c.TrainConfig == "" {
		return apperrors.New(apperrors.ErrCodeInvalidArgument, "train_config must be set")
	}
	return nil
}

// ApplyOverrides applies --set overrides to the config using reflection.
// Paths are matched case-insensitively against field names, with
// snake_case segments title-cased first ("time_limit" -> "TimeLimit").
// All failed overrides are reported together rather than one at a time.
func ApplyOverrides(cfg *Config, overrides map[string]string) error {
	if len(overrides) == 0 {
		return nil
	}

	target := reflect.ValueOf(cfg).Elem()

	paths := make([]string, 0, len(overrides))
	for p := range overrides {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var failures []string
	for _, path := range paths {
		if err := setField(target, path, overrides[path]); err != nil {
			failures = append(failures, path+"="+overrides[path]+": "+err.Error())
		}
	}
	if len(failures) > 0 {
		return apperrors.Newf(apperrors.ErrCodeInvalidArgument,
			"failed to apply overrides: %s", strings.Join(failures, "; "))
	}
	return nil
}

func setField(target reflect.Value, path, value string) error {
	field, ok := findField(target, pathToFieldName(path), path)
	if !ok {
		return apperrors.Newf(apperrors.ErrCodeInvalidArgument, "unknown field %q", path)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
		return nil
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return apperrors.Newf(apperrors.ErrCodeInvalidArgument, "invalid integer value %q", value)
		}
		field.SetInt(int64(n))
		return nil
	default:
		return apperrors.Newf(apperrors.ErrCodeInvalidArgument, "unsupported field type %s", field.Kind())
	}
}

func findField(target reflect.Value, fieldName, pathSegment string) (reflect.Value, bool) {
	structType := target.Type()

	if field := target.FieldByName(fieldName); field.IsValid() {
		return field, true
	}
	for i := 0; i < target.NumField(); i++ {
		name := structType.Field(i).Name
		if strings.EqualFold(name, fieldName) || strings.EqualFold(name, pathSegment) {
			return target.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// pathToFieldName converts a snake_case override path to a Go field
// name; findField's case-insensitive fallback covers acronym fields
// like GPUsPerNode.
func pathToFieldName(segment string) string {
	titleCaser := cases.Title(language.English)
	parts := strings.Split(segment, "_")
	var b strings.Builder
	for _, part := range parts {
		if strings.EqualFold(part, "gpu") {
			b.WriteString("GPU")
			continue
		}
		b.WriteString(titleCaser.String(part))
	}
	return b.String()
}
