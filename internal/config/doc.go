// Package config loads the usedotnet settings.
//
// # Sources
//
// Every setting has a key that doubles as a command-line flag name. Values
// are resolved by viper in this order:
//
//  1. an explicitly set flag (--version 8.0.100)
//  2. the task input variable INPUT_<KEY>, upper case with dashes removed
//     (INPUT_VERSION, INPUT_PACKAGETYPE)
//  3. for tools-dir and temp-dir, the agent variables AGENT_TOOLSDIRECTORY
//     and AGENT_TEMPDIRECTORY, then RUNNER_TOOL_CACHE and RUNNER_TEMP
//  4. the flag default
//
// When no tool cache is configured at all, the user cache directory is used.
//
// # Usage
//
//	fs := pflag.NewFlagSet("usedotnet", pflag.ContinueOnError)
//	config.RegisterFlags(fs)
//	v, err := config.NewViper(fs)
//	if err != nil {
//	    return err
//	}
//	cfg, err := config.Load(v)
//
// Load validates what it can without I/O. The version string is checked
// later by the provisioner, so that an invalid version is reported the same
// way regardless of where it came from.
package config
