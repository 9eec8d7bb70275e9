package decider

import (
	"github.com/variantlab/decider/internal/engine"
)

// DynamicConfig is one entry of GetAllDynamicConfigs.
type DynamicConfig struct {
	Name string `json:"name"`
	// Type is the declared type tag ("boolean", "integer", "float",
	// "string", "map") or "" when the config carries no tag.
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// GetBool fetches a boolean dynamic config. Returns def when the config
// is unavailable, not found, of a different type, or errors in any way.
func (d *Decider) GetBool(name string, def bool) bool {
	return getDynamicValue(d, "get_bool", name, def, func() (bool, error) {
		return d.eng.GetBool(name, d.snap.Map())
	})
}

// GetInt fetches an integer dynamic config with the same defaulting
// policy as GetBool.
func (d *Decider) GetInt(name string, def int64) int64 {
	return getDynamicValue(d, "get_int", name, def, func() (int64, error) {
		return d.eng.GetInt(name, d.snap.Map())
	})
}

// GetFloat fetches a float dynamic config with the same defaulting policy
// as GetBool.
func (d *Decider) GetFloat(name string, def float64) float64 {
	return getDynamicValue(d, "get_float", name, def, func() (float64, error) {
		return d.eng.GetFloat(name, d.snap.Map())
	})
}

// GetString fetches a string dynamic config with the same defaulting
// policy as GetBool.
func (d *Decider) GetString(name string, def string) string {
	return getDynamicValue(d, "get_string", name, def, func() (string, error) {
		return d.eng.GetString(name, d.snap.Map())
	})
}

// GetMap fetches a map dynamic config with the same defaulting policy as
// GetBool.
func (d *Decider) GetMap(name string, def map[string]any) map[string]any {
	return getDynamicValue(d, "get_map", name, def, func() (map[string]any, error) {
		return d.eng.GetMap(name, d.snap.Map())
	})
}

// getDynamicValue wraps one typed engine accessor with the never-raise
// policy: any failure resolves to def plus a log line.
func getDynamicValue[T any](d *Decider, op, name string, def T, get func() (T, error)) T {
	if d.eng == nil {
		d.logUnavailable(op)
		return def
	}

	value, err := get()
	if err != nil {
		d.logEngineErr(op, name, err)
		return def
	}

	countOp(op, nil)
	return value
}

// GetAllDynamicConfigs enumerates every active dynamic config. Entries
// that fail evaluation are included with the zero value of their declared
// type rather than omitted, so downstream consumers always see a stable
// config surface; a missing type tag enumerates as "".
func (d *Decider) GetAllDynamicConfigs() []DynamicConfig {
	const op = "get_all_dynamic_configs"

	if d.eng == nil {
		d.logUnavailable(op)
		return []DynamicConfig{}
	}

	values, err := d.eng.AllValues(d.snap.Map())
	if err != nil {
		d.logEngineErr(op, "", err)
		return []DynamicConfig{}
	}

	countOp(op, nil)

	configs := make([]DynamicConfig, 0, len(values))
	for name, dv := range values {
		configs = append(configs, DynamicConfig{
			Name:  name,
			Type:  dv.Type,
			Value: defaultedValue(dv),
		})
	}
	return configs
}

// defaultedValue substitutes the type-appropriate zero value when a bulk
// entry evaluated to nothing.
func defaultedValue(dv engine.DynamicValue) any {
	if dv.Value != nil {
		return dv.Value
	}
	switch dv.Type {
	case engine.TypeBoolean:
		return false
	case engine.TypeInteger:
		return int64(0)
	case engine.TypeFloat:
		return 0.0
	case engine.TypeString:
		return ""
	case engine.TypeMap:
		return map[string]any{}
	default:
		return nil
	}
}
