package cmd

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/perfx-labs/perfx/pkg/models"
)

// schemaFlagSet builds one string flag per endpoint schema parameter
// so operators pass arguments as ordinary flags (--model gpt-4,
// --batch-size 64). Values are type-checked later by validation, so
// every flag is a string here. Unknown flags are tolerated because
// the set is parsed against the raw command line, which also carries
// the run command's own flags.
func schemaFlagSet(params []models.ParameterSpec) *pflag.FlagSet {
	fs := pflag.NewFlagSet("endpoint-arguments", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.Usage = func() {}
	for _, p := range params {
		usage := p.Description
		if usage == "" {
			usage = "endpoint argument " + p.Name
		}
		fs.String(p.Name, "", usage)
	}
	return fs
}

// schemaFlagValues parses argv against the schema flag set and returns
// the explicitly provided parameter values keyed by schema name.
// Parsing stops at --, so locust pass-through args are never consumed.
func schemaFlagValues(params []models.ParameterSpec, argv []string) (map[string]string, error) {
	fs := schemaFlagSet(params)
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	values := make(map[string]string)
	for _, p := range params {
		if !fs.Changed(p.Name) {
			continue
		}
		v, err := fs.GetString(p.Name)
		if err != nil {
			return nil, err
		}
		values[p.Name] = v
	}
	return values, nil
}

// mergeArgs overlays --set pairs on top of schema flag values
func mergeArgs(flagValues, setValues map[string]string) map[string]string {
	if len(flagValues) == 0 && len(setValues) == 0 {
		return nil
	}
	merged := make(map[string]string, len(flagValues)+len(setValues))
	for k, v := range flagValues {
		merged[k] = v
	}
	for k, v := range setValues {
		merged[k] = v
	}
	return merged
}
