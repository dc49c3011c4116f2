// Package overrides implements dotted-key configuration overrides.
//
// The external programs take their configuration as dot-separated
// KEY=value pairs, either comma-joined behind a single --options flag
// (trainer) or as trailing positional arguments (evaluator):
//
//	train_igp.py --exp_name x --options net.c0=48,AGENT.IG_PLANNER.utility_exp=1.5
//	eval_agent.py ... AGENT.IG_PLANNER.ig_map_source=pred
//
// A Set preserves pair order (later pairs win when applied) and can be
// serialized back to either child CLI form byte-for-byte, applied onto a
// nested option tree, or decoded into typed structs for the subtrees
// igpctl interprets itself.
package overrides
