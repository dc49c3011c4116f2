// Package config provides configuration types and loading for igpctl.
//
// # Configuration Files
//
// The package handles three kinds of configuration:
//
//   - ToolConfig: igpctl's own settings loaded from <root>/igpctl.toml
//   - Manifest: experiment manifests loaded from <root>/experiments/*.yaml
//   - RunRecord: per-run state stored in <root>/state/runs/<name>/record.json
//
// where <root> is $IGPCTL_HOME or ~/.igpctl.
//
// # Tool Configuration
//
// ToolConfig locates the external project and its interpreter:
//
//	type ToolConfig struct {
//	    Python      string // interpreter (empty = auto-detect)
//	    CondaEnv    string // pinned conda environment name
//	    ProjectRoot string // checkout with train_igp.py / eval_agent.py
//	    GPUs        []int  // schedulable CUDA device ids
//	}
//
// # Manifests
//
// Manifests describe experiments declaratively:
//
//	type Manifest struct {
//	    Name    string         // experiment identifier
//	    Program string         // "train" or "eval"
//	    Options map[string]any // dotted-key option overrides
//	    Eval    *EvalSettings  // evaluator knobs
//	    Sweep   []SweepAxis    // hyperparameter sweep dimensions
//	}
//
// # Run Records
//
// RunRecord tracks a launched child process:
//
//	type RunRecord struct {
//	    Name       string   // run identifier
//	    Experiment string   // exp_name passed to the child
//	    Program    string   // "train" or "eval"
//	    GPU        int      // allocated device
//	    PID        int      // child process id
//	    Argv       []string // exact composed command line
//	    Status     string   // pending/running/finished/failed/stopped
//	}
//
// # Validation
//
// All configuration types implement Validate() to check for required fields
// and valid values. Loading functions automatically validate after parsing.
package config
