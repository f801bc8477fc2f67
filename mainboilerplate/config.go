package mainboilerplate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

var (
	// Version of the program, set at build time via -ldflags.
	Version = "development"
	// BuildDate of the program, set at build time via -ldflags.
	BuildDate = "unknown"
)

// ConfigPathEnv names an environment variable holding the path of an INI
// file to use, rather than searching for one.
const ConfigPathEnv = "SHARDAPPLY_CONFIG"

// MustParseConfig parses the Parser from an INI file, then from environment
// bindings and flags, exiting the process on an error. The INI file is
// $SHARDAPPLY_CONFIG if set, and otherwise the first of |configName| in the
// working directory or ~/.config/shardapply which exists.
func MustParseConfig(parser *flags.Parser, configName string) {
	if err := parseConfigFile(parser, configPaths(configName)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	MustParseArgs(parser)
}

// parseConfigFile parses the first of |paths| which exists. When
// ConfigPathEnv is set, |paths| is just that file, and it must exist.
func parseConfigFile(parser *flags.Parser, paths []string) error {
	// INI files may hold options of sub-commands other than the one invoked.
	var options = parser.Options
	parser.Options |= flags.IgnoreUnknown
	defer func() { parser.Options = options }()

	var required = os.Getenv(ConfigPathEnv) != ""
	for _, path := range paths {
		var err = flags.NewIniParser(parser).ParseFile(path)
		if err == nil {
			return nil
		} else if required || !os.IsNotExist(err) {
			return errors.WithMessagef(err, "parsing %s", path)
		}
	}
	return nil
}

func configPaths(configName string) []string {
	if path := os.Getenv(ConfigPathEnv); path != "" {
		return []string{path}
	}
	var out = []string{configName}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ".config", "shardapply", configName))
	}
	return out
}

// MustParseArgs parses the Parser from os.Args, exiting the process if
// parsing fails or help was requested.
func MustParseArgs(parser *flags.Parser) {
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		os.Exit(parseExitCode(parser, err, os.Stderr))
	}
}

// parseExitCode returns the process exit code of a ParseArgs error, writing
// usage to |w| when the user asked for it or omitted a sub-command.
func parseExitCode(parser *flags.Parser, err error, w io.Writer) int {
	var flagErr *flags.Error
	if !errors.As(err, &flagErr) {
		fmt.Fprintln(w, err)
		return 1
	}

	switch flagErr.Type {
	case flags.ErrDuplicatedFlag, flags.ErrTag, flags.ErrInvalidTag, flags.ErrShortNameTooLong, flags.ErrMarshal:
		panic(err) // The configuration struct itself is malformed.
	case flags.ErrHelp:
		if parser.Options&flags.PrintErrors == 0 {
			writeUsage(parser, w)
		}
		return 0
	case flags.ErrCommandRequired:
		fmt.Fprintln(w)
		writeUsage(parser, w)
		return 1
	default:
		// Input errors were already printed by go-flags.
		return 1
	}
}

func writeUsage(parser *flags.Parser, w io.Writer) {
	parser.WriteHelp(w)
	fmt.Fprintf(w, "\nshardapply %s (built %s)\n", Version, BuildDate)
}

// AddPrintConfigCmd adds a "print-config" command, which writes the
// effective configuration in INI format.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	parser.AddCommand("print-config", "Print the effective configuration and exit", `
print-config writes the configuration resulting from `+configName+` (or $`+ConfigPathEnv+`),
environment variables, and flags to stdout, in INI format. Its output is itself
a valid `+configName+`.
`, &printConfig{parser: parser, out: os.Stdout})
}

type printConfig struct {
	parser *flags.Parser
	out    io.Writer
}

func (p *printConfig) Execute([]string) error {
	flags.NewIniParser(p.parser).Write(p.out,
		flags.IniIncludeComments|flags.IniCommentDefaults|flags.IniIncludeDefaults)
	return nil
}
