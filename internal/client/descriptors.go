package client

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/danmuck/donuts/internal/protocol/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var ErrUnsupportedSchema = errors.New("client: unsupported argument schema")

// Entry is one catalogue row received during discovery.
type Entry struct {
	Name       string         `json:"name"`
	TypeSchema *schema.Schema `json:"typeSchema"`
}

// invocation is what the command line resolved to.
type invocation struct {
	name string
	args any
	set  bool
}

// defaults resolves meta.default sources for one property.
type defaults struct {
	prefix string
	env    func(string) string
	ppid   int
}

func (d defaults) resolve(sources []schema.DefaultSource) (string, bool) {
	for _, src := range sources {
		var v string
		switch src.Source {
		case schema.SourcePID:
			if d.ppid > 0 {
				v = strconv.Itoa(d.ppid)
			}
		case schema.SourceEnv:
			if d.env != nil && src.Name != "" {
				v = d.env(d.prefix + src.Name)
			}
		}
		if v != "" {
			return v, true
		}
	}
	return "", false
}

// buildCLI turns the catalogue into a cobra tree. Running it fills inv; a
// run that only printed help leaves inv unset.
func buildCLI(catalogue []Entry, defs defaults, inv *invocation) *cobra.Command {
	root := &cobra.Command{
		Use:           "donuts <command> [flags]",
		Short:         "Run a command on the donuts host",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			// unknown names still go to the host, which answers for them
			*inv = invocation{name: args[0], set: true}
			return nil
		},
	}
	root.FParseErrWhitelist.UnknownFlags = true
	root.CompletionOptions.DisableDefaultCmd = true

	sorted := append([]Entry(nil), catalogue...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, entry := range sorted {
		if strings.TrimSpace(entry.Name) == "" {
			continue
		}
		root.AddCommand(buildCommand(entry, defs, inv))
	}
	return root
}

func buildCommand(entry Entry, defs defaults, inv *invocation) *cobra.Command {
	name, s := entry.Name, entry.TypeSchema
	cmd := &cobra.Command{
		Use:           name,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if s == nil {
		return unsupported(cmd, name, "missing schema")
	}

	switch s.Type {
	case schema.TypeNull:
		cmd.Short = "takes no arguments"
		cmd.RunE = func(*cobra.Command, []string) error {
			*inv = invocation{name: name, set: true}
			return nil
		}
	case schema.TypeAny:
		cmd.Short = "accepts free-form --key value arguments"
		cmd.DisableFlagParsing = true
		cmd.Args = cobra.ArbitraryArgs
		cmd.RunE = func(c *cobra.Command, tokens []string) error {
			args, help, err := parseFreeForm(tokens)
			if err != nil {
				return err
			}
			if help {
				return c.Help()
			}
			*inv = invocation{name: name, args: args, set: true}
			return nil
		}
	case schema.TypeObject:
		withDefault := make(map[string]bool, len(s.Properties))
		for _, p := range s.Properties {
			def, ok := "", false
			if p.Schema != nil && p.Schema.Type == schema.TypeString {
				def, ok = defs.resolve(p.Schema.Meta.Default)
			}
			if err := addFlag(cmd.Flags(), p, def); err != nil {
				return unsupported(cmd, name, err.Error())
			}
			withDefault[p.Name] = ok
			if s.IsRequired(p.Name) && !ok {
				_ = cmd.MarkFlagRequired(p.Name)
			}
		}
		cmd.RunE = func(c *cobra.Command, _ []string) error {
			args := make(map[string]any, len(s.Properties))
			for _, p := range s.Properties {
				if !c.Flags().Changed(p.Name) && !withDefault[p.Name] {
					continue
				}
				v, err := flagValue(c.Flags(), p)
				if err != nil {
					return err
				}
				args[p.Name] = v
			}
			*inv = invocation{name: name, args: args, set: true}
			return nil
		}
	default:
		return unsupported(cmd, name, "type "+string(s.Type))
	}
	return cmd
}

// unsupported keeps the command listed but fails only when it is invoked.
func unsupported(cmd *cobra.Command, name, reason string) *cobra.Command {
	cmd.Short = "not callable from this client"
	cmd.DisableFlagParsing = true
	cmd.Args = cobra.ArbitraryArgs
	cmd.RunE = func(*cobra.Command, []string) error {
		return fmt.Errorf("%w: %s: %s", ErrUnsupportedSchema, name, reason)
	}
	return cmd
}

func addFlag(fs *pflag.FlagSet, p schema.Property, def string) error {
	s := p.Schema
	if s == nil {
		return fmt.Errorf("property %q has no schema", p.Name)
	}
	switch s.Type {
	case schema.TypeString:
		usage := "string"
		if len(s.StringEnum) > 0 {
			usage = "one of: " + strings.Join(s.StringEnum, "|")
		}
		fs.String(p.Name, def, usage)
	case schema.TypeNumber:
		fs.Float64(p.Name, 0, "number")
	case schema.TypeBoolean:
		fs.Bool(p.Name, false, "boolean")
	case schema.TypeNull, schema.TypeAny:
		fs.String(p.Name, "", "value")
	case schema.TypeArray:
		if s.Items == nil {
			return fmt.Errorf("property %q: array without items", p.Name)
		}
		switch s.Items.Type {
		case schema.TypeString:
			fs.StringSlice(p.Name, nil, "comma separated strings")
		case schema.TypeNumber:
			fs.Float64Slice(p.Name, nil, "comma separated numbers")
		case schema.TypeBoolean:
			fs.BoolSlice(p.Name, nil, "comma separated booleans")
		default:
			return fmt.Errorf("property %q: array of %s", p.Name, s.Items.Type)
		}
	default:
		return fmt.Errorf("property %q: type %s", p.Name, s.Type)
	}
	return nil
}

func flagValue(fs *pflag.FlagSet, p schema.Property) (any, error) {
	switch p.Schema.Type {
	case schema.TypeNumber:
		return fs.GetFloat64(p.Name)
	case schema.TypeBoolean:
		return fs.GetBool(p.Name)
	case schema.TypeArray:
		switch p.Schema.Items.Type {
		case schema.TypeNumber:
			v, err := fs.GetFloat64Slice(p.Name)
			return toAnySlice(v), err
		case schema.TypeBoolean:
			v, err := fs.GetBoolSlice(p.Name)
			return toAnySlice(v), err
		default:
			v, err := fs.GetStringSlice(p.Name)
			return toAnySlice(v), err
		}
	default:
		return fs.GetString(p.Name)
	}
}

func toAnySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// parseFreeForm reads "--key value", "--key=value" and bare "--flag" tokens.
func parseFreeForm(tokens []string) (map[string]any, bool, error) {
	out := make(map[string]any)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == "--help" || tok == "-h" {
			return nil, true, nil
		}
		if !strings.HasPrefix(tok, "--") || len(tok) == 2 {
			return nil, false, fmt.Errorf("client: unexpected argument %q", tok)
		}
		key, val, hasVal := strings.Cut(tok[2:], "=")
		if key == "" {
			return nil, false, fmt.Errorf("client: unexpected argument %q", tok)
		}
		if !hasVal {
			if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "--") {
				i++
				out[key] = tokens[i]
				continue
			}
			out[key] = true
			continue
		}
		out[key] = val
	}
	return out, false, nil
}
