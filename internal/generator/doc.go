// Package generator renders the files igpctl scaffolds for a new setup.
//
// This package generates the igpctl.toml tool configuration, an example
// experiment manifest, and an optional systemd unit for the run monitor.
// Generated files are heavily commented so they document themselves; the
// commented examples double as the reference for hand-edited configs.
//
// # Tool Configuration
//
// GenerateToolConfig creates a loadable igpctl.toml:
//
//	content, err := generator.GenerateToolConfig(&generator.ToolConfigData{
//	    ProjectRoot: "/home/user/polo",
//	    CondaEnv:    "igp",
//	    GPUs:        []int{0, 1},
//	    DataDir:     "/data/datasets/info_gain",
//	})
//
// Optional fields left empty render as commented examples rather than
// being omitted, so the generated file shows every knob.
//
// # Example Manifest
//
// GenerateManifest creates a starter experiment manifest with options,
// env, restart policy, and a commented sweep block. Eval manifests get
// an eval settings block.
//
// # Systemd Unit
//
// GenerateSystemdUnit renders a service file wrapping igpctl monitor,
// for hosts that should reconcile and restart runs across reboots.
//
// All generation goes through text/template; the templates are parsed
// once at package load time and rendering is just an Execute.
package generator
