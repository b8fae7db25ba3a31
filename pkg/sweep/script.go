/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

package sweep

import (
	"bytes"
	"strings"
	"text/template"

	apperrors "github.com/eleutherai/neoxctl/pkg/errors"
)

const scriptTemplate = `#!/bin/bash
#SBATCH --job-name={{.Config.JobName}}
{{- if .Config.Account}}
#SBATCH --account={{.Config.Account}}
{{- end}}
{{- if .Config.Partition}}
#SBATCH --partition={{.Config.Partition}}
{{- end}}
#SBATCH --nodes={{.Config.Nodes}}
#SBATCH --gres=gpu:{{.Config.GPUsPerNode}}
#SBATCH --time={{.Config.TimeLimit}}
#SBATCH --array=0-{{.LastIndex}}
#SBATCH --output={{.Config.JobName}}-%A_%a.out

set -euo pipefail

TRIALS=(
{{- range .TrialArgs}}
  "{{.}}"
{{- end}}
)

cd {{.Config.WorkDir}}
srun python ./deepy.py train.py {{.Config.TrainConfig}} ${TRIALS[$SLURM_ARRAY_TASK_ID]}
`

var scriptTmpl = template.Must(template.New("sbatch").Parse(scriptTemplate))

// Values land inside a double-quoted bash array entry, so anything the
// shell would expand there is rejected up front.
const unsafeChars = "\"`$\\;&|<>\n"

// Render produces the sbatch array-job script for the given trials.
// The array directive covers indices 0 through len(trials)-1, one
// trial per array task.
func Render(cfg Config, trials []Trial) ([]byte, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(trials) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidArgument, "at least one trial is required")
	}

	args := make([]string, 0, len(trials))
	for _, t := range trials {
		for _, s := range t {
			if strings.ContainsAny(s.Name, unsafeChars) || strings.ContainsAny(s.Value, unsafeChars) {
				return nil, apperrors.Newf(apperrors.ErrCodeInvalidArgument,
					"parameter %s=%s contains shell metacharacters", s.Name, s.Value)
			}
		}
		args = append(args, t.Args())
	}

	data := struct {
		Config    Config
		LastIndex int
		TrialArgs []string
	}{
		Config:    cfg,
		LastIndex: len(trials) - 1,
		TrialArgs: args,
	}

	var buf bytes.Buffer
	if err := scriptTmpl.Execute(&buf, data); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to render sbatch script", err)
	}
	return buf.Bytes(), nil
}
