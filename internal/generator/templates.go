package generator

import (
	"strconv"
	"strings"
	"text/template"
)

// tomlString renders s as a quoted TOML basic string.
func tomlString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// tomlIntList renders ids as a TOML integer array.
func tomlIntList(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// yamlString renders s as a double-quoted YAML scalar.
func yamlString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// toolConfigTemplateText renders igpctl.toml. Sections the wizard left
// unset come out as commented examples so the file documents itself.
const toolConfigTemplateText = `# igpctl configuration. Generated by igpctl init; edit freely.
#
# igpctl resolves this file at $IGPCTL_HOME/igpctl.toml, defaulting to
# ~/.igpctl/igpctl.toml.

# Checkout containing train_igp.py and eval_agent.py.
project_root = {{.ProjectRoot | tomlString}}

{{if .Python}}# Explicit interpreter for child processes.
python = {{.Python | tomlString}}
{{else if .CondaEnv}}# Conda environment holding the project interpreter. Children launch
# through conda run -n {{.CondaEnv}}.
conda_env = {{.CondaEnv | tomlString}}
{{else}}# Interpreter detection order: python, conda_env, python3 on PATH.
# python = "/opt/conda/envs/igp/bin/python"
# conda_env = "igp"
{{end}}
# CUDA devices runs may be scheduled onto.
{{if .GPUs}}gpus = {{.GPUs | tomlIntList}}
{{else}}# gpus = [0, 1]
{{end}}
{{if .DataDir}}# Dataset root for data and map commands.
data_dir = {{.DataDir | tomlString}}
{{else}}# Dataset root for data and map commands.
# data_dir = "/data/datasets/info_gain"
{{end}}
# Entry points, relative to project_root.
train_script = "train_igp.py"
eval_script = "eval_agent.py"

# Conda environment descriptor, relative to project_root.
environment_file = "environment.yml"
`

// manifestTemplateText renders an example experiment manifest.
const manifestTemplateText = `# Experiment manifest for igpctl.
#
# Validate with: igpctl manifests
# Launch with:   igpctl {{.Program}} {{.Name}}

name: {{.Name}}
{{if .Description}}description: {{.Description | yamlString}}
{{end}}program: {{.Program}}
{{if .BaseConfig}}
# Base YAML config, passed to the program before any overrides.
base_config: {{.BaseConfig | yamlString}}
{{end}}
# Dotted-key overrides, applied in order after the base config.
options:
  NUM_PROCESSES: 4
  SEMANTIC_MAP.map_resolution: 5

# Extra environment for the child process.
env:
  OMP_NUM_THREADS: "4"

{{if eq .Program "eval"}}# Evaluation settings.
eval:
  episodes: {{.Episodes}}
  policy: {{.Policy}}
  skip_existing: true

{{end}}# Relaunches allowed while igpctl monitor --auto-restart is active.
restart:
  max_restarts: 2

# Uncomment to fan out one run per value combination.
# sweep:
#   - key: RL.PPO.intrinsic_coef
#     values: [0.02, 0.05, 0.1]
`

// unitTemplateText renders a systemd service for the run monitor.
const unitTemplateText = `[Unit]
Description=igpctl run monitor
Documentation=https://github.com/polonav/igpctl
After=network.target

[Service]
Type=simple
{{if .User}}User={{.User}}
{{end}}ExecStart={{.ExecStart}}
Restart=on-failure
RestartSec=10s

[Install]
WantedBy=multi-user.target
`

// Parsed templates, initialized at package load time.
var (
	toolConfigTemplate *template.Template
	manifestTemplate   *template.Template
	unitTemplate       *template.Template
)

func init() {
	funcs := template.FuncMap{
		"tomlString":  tomlString,
		"tomlIntList": tomlIntList,
		"yamlString":  yamlString,
	}
	toolConfigTemplate = template.Must(template.New("toolconfig").Funcs(funcs).Parse(toolConfigTemplateText))
	manifestTemplate = template.Must(template.New("manifest").Funcs(funcs).Parse(manifestTemplateText))
	unitTemplate = template.Must(template.New("unit").Funcs(funcs).Parse(unitTemplateText))
}
