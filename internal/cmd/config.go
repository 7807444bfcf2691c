package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/losdos/motionglove/internal/configpaths"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// ConfigCommand groups config-related subcommands.
type ConfigCommand struct {
	Init ConfigInit `cmd:"" help:"Generate a configuration template"`
}

// ConfigInit scaffolds a configuration file for a specific command.
type ConfigInit struct {
	Command string `arg:"" name:"command" help:"Command to generate config for" enum:"glove,dongle,monitor"`
	Format  string `help:"Output format" enum:"json,yaml,yml,toml" default:"json"`
	Output  string `help:"Destination file path (defaults to <command>.<ext> in the current directory)"`
	Force   bool   `help:"Overwrite if the file already exists"`
}

// Run generates a configuration template by reflecting over the command
// struct and its kong tags.
func (c *ConfigInit) Run() error {
	data, err := Render(c.Command, c.Format)
	if err != nil {
		return err
	}

	dest := c.Output
	if dest == "" {
		dest = c.Command + "." + configpaths.Ext(c.Format)
	}
	if !c.Force {
		if _, err := os.Stat(dest); err == nil {
			return errors.New("destination exists; use --force to overwrite")
		}
	}
	if err := configpaths.EnsureDir(dest); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	fmt.Println("Wrote", dest)
	return nil
}

// Render returns the configuration template of command in format.
//
// The JSON loader resolves a flag by splitting its name on dots with dashes
// replaced by underscores, so JSON templates are nested that way. The YAML
// and TOML loaders look flags up under the command name, so those templates
// hold one table per command keyed by full flag name.
func Render(command, format string) ([]byte, error) {
	var t reflect.Type
	switch command {
	case "glove":
		t = reflect.TypeOf(Glove{})
	case "dongle":
		t = reflect.TypeOf(Dongle{})
	case "monitor":
		t = reflect.TypeOf(Monitor{})
	default:
		return nil, fmt.Errorf("unknown command %q; expected glove, dongle or monitor", command)
	}
	flags := collectFlags(t, "")

	switch normalizeFormat(format) {
	case "json":
		root := map[string]any{}
		for _, f := range flags {
			setPath(root, strings.Split(strings.ReplaceAll(f.name, "-", "_"), "."), f.value)
		}
		return json.MarshalIndent(root, "", "  ")
	case "yaml":
		return yaml.Marshal(commandTable(command, flags))
	case "toml":
		return toml.Marshal(commandTable(command, flags))
	}
	return nil, fmt.Errorf("unsupported format: %s", format)
}

func normalizeFormat(f string) string {
	switch strings.ToLower(f) {
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	default:
		return ""
	}
}

type flagDefault struct {
	name  string
	value any
}

func commandTable(command string, flags []flagDefault) map[string]any {
	tbl := make(map[string]any, len(flags))
	for _, f := range flags {
		tbl[f.name] = f.value
	}
	return map[string]any{command: tbl}
}

func setPath(m map[string]any, path []string, v any) {
	for _, p := range path[:len(path)-1] {
		sub, ok := m[p].(map[string]any)
		if !ok {
			sub = map[string]any{}
			m[p] = sub
		}
		m = sub
	}
	m[path[len(path)-1]] = v
}

// collectFlags lists the flags of t with their defaults, named the way kong
// names them.
func collectFlags(t reflect.Type, prefix string) []flagDefault {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var out []flagDefault
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("kong") == "-" {
			continue
		}
		if _, ok := f.Tag.Lookup("cmd"); ok {
			continue
		}
		if _, ok := f.Tag.Lookup("arg"); ok {
			continue
		}
		if _, ok := f.Tag.Lookup("embed"); ok {
			out = append(out, collectFlags(f.Type, prefix+f.Tag.Get("prefix"))...)
			continue
		}
		name := f.Tag.Get("name")
		if name == "" {
			name = kebab(f.Name)
		}
		if val := defaultValueForField(f.Type, f.Tag.Get("default")); val != nil {
			out = append(out, flagDefault{name: prefix + name, value: val})
		}
	}
	return out
}

// kebab converts a Go field name to a flag name: ListenAddr becomes
// listen-addr and ClientID becomes client-id.
func kebab(s string) string {
	r := []rune(s)
	var b strings.Builder
	for i, c := range r {
		if i > 0 && unicode.IsUpper(c) {
			prev := r[i-1]
			nextLower := i+1 < len(r) && unicode.IsLower(r[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(c))
	}
	return b.String()
}

func defaultValueForField(t reflect.Type, def string) any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "time" && t.Name() == "Duration" {
		if def != "" {
			return def
		}
		return "0s"
	}
	switch t.Kind() {
	case reflect.String:
		return def // may be empty
	case reflect.Bool:
		if def == "" {
			return false
		}
		b, err := strconv.ParseBool(def)
		if err != nil {
			return false
		}
		return b
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if def == "" {
			return 0
		}
		n, err := strconv.ParseInt(def, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if def == "" {
			return 0
		}
		n, err := strconv.ParseUint(def, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case reflect.Float32, reflect.Float64:
		if def == "" {
			return 0
		}
		f, err := strconv.ParseFloat(def, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return nil
	}
}
