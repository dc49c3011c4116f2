// Package invocation composes command lines for the external programs.
//
// The argument shapes are a contract with the Python side and must not
// drift:
//
//	train_igp.py --exp_name <name> --options k=v,k2=v2
//	eval_agent.py [--save_video] [--no_render] [--no_interactive]
//	    --eval_eps_total_num <n> --exp_name <name> --eval_policy <p>
//	    [--gt_semantic] [--skip_existing] --gpu_id <n> [KEY=value ...]
package invocation

import (
	"fmt"
	"strconv"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/polonav/igpctl/internal/overrides"
)

// Builder composes argv slices for one resolved program.
type Builder struct {
	// Interpreter is the command prefix that runs Python, either a bare
	// interpreter path or a conda run prefix.
	Interpreter []string

	// Script is the absolute path of the program to run.
	Script string
}

// TrainSpec describes a trainer invocation.
type TrainSpec struct {
	ExpName string
	Options *overrides.Set
}

// EvalSpec describes an evaluator invocation.
type EvalSpec struct {
	ExpName       string
	Episodes      int
	Policy        string
	GPUID         int
	SaveVideo     bool
	NoRender      bool
	NoInteractive bool
	GTSemantic    bool
	SkipExisting  bool
	Overrides     *overrides.Set
}

// TrainArgv composes the trainer command line.
func (b *Builder) TrainArgv(spec TrainSpec) ([]string, error) {
	if spec.ExpName == "" {
		return nil, fmt.Errorf("exp_name is required")
	}

	argv := b.prefix()
	argv = append(argv, "--exp_name", spec.ExpName)

	if spec.Options != nil && spec.Options.Len() > 0 {
		argv = append(argv, "--options", spec.Options.OptionsArg())
	}

	return argv, nil
}

// EvalArgv composes the evaluator command line. Flag order follows the
// project's shell scripts: toggles first, then the required flags, then
// trailing KEY=value overrides.
func (b *Builder) EvalArgv(spec EvalSpec) ([]string, error) {
	if spec.ExpName == "" {
		return nil, fmt.Errorf("exp_name is required")
	}
	if spec.Episodes <= 0 {
		return nil, fmt.Errorf("episode count must be positive (got %d)", spec.Episodes)
	}
	if spec.Policy == "" {
		return nil, fmt.Errorf("eval policy is required")
	}
	if spec.GPUID < 0 {
		return nil, fmt.Errorf("gpu id must be non-negative (got %d)", spec.GPUID)
	}

	argv := b.prefix()

	if spec.SaveVideo {
		argv = append(argv, "--save_video")
	}
	if spec.NoRender {
		argv = append(argv, "--no_render")
	}
	if spec.NoInteractive {
		argv = append(argv, "--no_interactive")
	}

	argv = append(argv,
		"--eval_eps_total_num", strconv.Itoa(spec.Episodes),
		"--exp_name", spec.ExpName,
		"--eval_policy", spec.Policy,
	)

	if spec.GTSemantic {
		argv = append(argv, "--gt_semantic")
	}
	if spec.SkipExisting {
		argv = append(argv, "--skip_existing")
	}

	argv = append(argv, "--gpu_id", strconv.Itoa(spec.GPUID))

	if spec.Overrides != nil {
		argv = append(argv, spec.Overrides.Args()...)
	}

	return argv, nil
}

func (b *Builder) prefix() []string {
	argv := make([]string, 0, len(b.Interpreter)+8)
	argv = append(argv, b.Interpreter...)
	argv = append(argv, b.Script)
	return argv
}

// CommandLine renders an argv as a copy-pasteable shell command.
func CommandLine(argv []string) string {
	return shellquote.Join(argv...)
}
