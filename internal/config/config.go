package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"inkwell/internal/logging"
)

const (
	DefaultAddr        = "127.0.0.1:57418"
	DefaultFileName    = "inkwell.yaml"
	DefaultWatchSettle = 75 * time.Millisecond
	appDirName         = "inkwell"
)

type Config struct {
	Addr         string
	Token        string
	DataDir      string
	InternalRoot string
	Root         string
	ConfigFile   string
	WatchSettle  time.Duration
	LogLevel     logging.Level
	ShowVersion  bool
	Sources      map[string]Source
}

type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// fileSettings is the on-disk shape of inkwell.yaml.
type fileSettings struct {
	Addr         string `yaml:"addr"`
	Token        string `yaml:"token"`
	InternalRoot string `yaml:"internal_root"`
	WatchSettle  string `yaml:"watch_settle"`
	LogLevel     string `yaml:"log_level"`
}

type flagValues struct {
	Addr         string
	Token        string
	DataDir      string
	InternalRoot string
	Root         string
	WatchSettle  time.Duration
	ConfigFile   string
	Verbose      bool
	Quiet        bool
	Help         bool
	Version      bool
	Set          map[string]bool
}

// Environment abstracts the process environment so tests can load
// configuration without touching real variables or the user's home.
type Environment struct {
	Getenv        func(string) string
	UserConfigDir func() (string, error)
	HelpOutput    io.Writer
}

func processEnvironment() Environment {
	return Environment{
		Getenv:        os.Getenv,
		UserConfigDir: os.UserConfigDir,
		HelpOutput:    os.Stdout,
	}
}

// Load resolves configuration from defaults, the settings file, INKWELL_*
// variables and flags, in increasing precedence. It returns flag.ErrHelp
// after printing usage when --help is given.
func Load(args []string) (Config, error) {
	return LoadWith(args, processEnvironment())
}

func LoadWith(args []string, env Environment) (Config, error) {
	if env.Getenv == nil {
		env.Getenv = func(string) string { return "" }
	}
	if env.UserConfigDir == nil {
		env.UserConfigDir = os.UserConfigDir
	}
	if env.HelpOutput == nil {
		env.HelpOutput = io.Discard
	}

	flags, err := parseFlags(args, env.HelpOutput)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Sources:     make(map[string]Source),
		ShowVersion: flags.Version,
	}

	dataDir, dataDirSource, err := resolveDataDir(flags, env)
	if err != nil {
		return Config{}, err
	}
	cfg.DataDir = dataDir
	cfg.Sources["data-dir"] = dataDirSource

	configFile := filepath.Join(dataDir, DefaultFileName)
	configSource := SourceDefault
	if raw := strings.TrimSpace(env.Getenv("INKWELL_CONFIG")); raw != "" {
		configFile = raw
		configSource = SourceEnv
	}
	if flags.Set["config"] {
		trimmed := strings.TrimSpace(flags.ConfigFile)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --config: value cannot be empty")
		}
		configFile = trimmed
		configSource = SourceFlag
	}
	cfg.ConfigFile = configFile
	cfg.Sources["config"] = configSource

	file, err := readFileSettings(configFile, configSource != SourceDefault)
	if err != nil {
		return Config{}, err
	}

	addr := DefaultAddr
	addrSource := SourceDefault
	if trimmed := strings.TrimSpace(file.Addr); trimmed != "" {
		addr = trimmed
		addrSource = SourceFile
	}
	if raw := strings.TrimSpace(env.Getenv("INKWELL_ADDR")); raw != "" {
		addr = raw
		addrSource = SourceEnv
	}
	if flags.Set["addr"] {
		trimmed := strings.TrimSpace(flags.Addr)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --addr: value cannot be empty")
		}
		addr = trimmed
		addrSource = SourceFlag
	}
	cfg.Addr = addr
	cfg.Sources["addr"] = addrSource

	token := file.Token
	tokenSource := SourceDefault
	if token != "" {
		tokenSource = SourceFile
	}
	if raw := env.Getenv("INKWELL_TOKEN"); raw != "" {
		token = raw
		tokenSource = SourceEnv
	}
	if flags.Set["token"] {
		token = flags.Token
		tokenSource = SourceFlag
	}
	cfg.Token = token
	cfg.Sources["token"] = tokenSource

	internalRoot := filepath.Join(dataDir, "workspace")
	internalRootSource := SourceDefault
	if trimmed := strings.TrimSpace(file.InternalRoot); trimmed != "" {
		internalRoot = expandHome(trimmed)
		internalRootSource = SourceFile
	}
	if raw := strings.TrimSpace(env.Getenv("INKWELL_INTERNAL_ROOT")); raw != "" {
		internalRoot = expandHome(raw)
		internalRootSource = SourceEnv
	}
	if flags.Set["internal-root"] {
		trimmed := strings.TrimSpace(flags.InternalRoot)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --internal-root: value cannot be empty")
		}
		internalRoot = expandHome(trimmed)
		internalRootSource = SourceFlag
	}
	cfg.InternalRoot = internalRoot
	cfg.Sources["internal-root"] = internalRootSource

	root := ""
	rootSource := SourceDefault
	if raw := strings.TrimSpace(env.Getenv("INKWELL_ROOT")); raw != "" {
		root = expandHome(raw)
		rootSource = SourceEnv
	}
	if flags.Set["root"] {
		root = expandHome(strings.TrimSpace(flags.Root))
		rootSource = SourceFlag
	}
	cfg.Root = root
	cfg.Sources["root"] = rootSource

	settle := DefaultWatchSettle
	settleSource := SourceDefault
	if trimmed := strings.TrimSpace(file.WatchSettle); trimmed != "" {
		parsed, err := parseSettle(trimmed)
		if err != nil {
			return Config{}, fmt.Errorf("invalid watch_settle in %s: %w", configFile, err)
		}
		settle = parsed
		settleSource = SourceFile
	}
	if raw := strings.TrimSpace(env.Getenv("INKWELL_WATCH_SETTLE")); raw != "" {
		parsed, err := parseSettle(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INKWELL_WATCH_SETTLE: %w", err)
		}
		settle = parsed
		settleSource = SourceEnv
	}
	if flags.Set["watch-settle"] {
		if flags.WatchSettle < 0 {
			return Config{}, fmt.Errorf("invalid --watch-settle: must be >= 0")
		}
		settle = flags.WatchSettle
		settleSource = SourceFlag
	}
	cfg.WatchSettle = settle
	cfg.Sources["watch-settle"] = settleSource

	level := logging.LevelInfo
	levelSource := SourceDefault
	if trimmed := strings.TrimSpace(file.LogLevel); trimmed != "" {
		parsed, ok := logging.ParseLevel(trimmed)
		if !ok {
			return Config{}, fmt.Errorf("invalid log_level %q in %s", trimmed, configFile)
		}
		level = parsed
		levelSource = SourceFile
	}
	if raw := strings.TrimSpace(env.Getenv("INKWELL_LOG_LEVEL")); raw != "" {
		if parsed, ok := logging.ParseLevel(raw); ok {
			level = parsed
			levelSource = SourceEnv
		}
	}
	if flags.Verbose && flags.Quiet {
		return Config{}, fmt.Errorf("--verbose and --quiet cannot be combined")
	}
	if flags.Verbose {
		level = logging.LevelDebug
		levelSource = SourceFlag
	}
	if flags.Quiet {
		level = logging.LevelWarning
		levelSource = SourceFlag
	}
	cfg.LogLevel = level
	cfg.Sources["log-level"] = levelSource

	return cfg, nil
}

func resolveDataDir(flags flagValues, env Environment) (string, Source, error) {
	if flags.Set["data-dir"] {
		trimmed := strings.TrimSpace(flags.DataDir)
		if trimmed == "" {
			return "", "", fmt.Errorf("invalid --data-dir: value cannot be empty")
		}
		return expandHome(trimmed), SourceFlag, nil
	}
	if raw := strings.TrimSpace(env.Getenv("INKWELL_DATA_DIR")); raw != "" {
		return expandHome(raw), SourceEnv, nil
	}
	base, err := env.UserConfigDir()
	if err != nil || base == "" {
		return ".inkwell", SourceDefault, nil
	}
	return filepath.Join(base, appDirName), SourceDefault, nil
}

// readFileSettings loads the YAML settings file. A missing file is only an
// error when the path was chosen explicitly.
func readFileSettings(path string, explicit bool) (fileSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return fileSettings{}, nil
		}
		return fileSettings{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var settings fileSettings
	if len(bytes.TrimSpace(data)) == 0 {
		return settings, nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&settings); err != nil {
		return fileSettings{}, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return settings, nil
}

func parseSettle(value string) (time.Duration, error) {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if parsed < 0 {
		return 0, fmt.Errorf("must be >= 0")
	}
	return parsed, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func parseFlags(args []string, helpOutput io.Writer) (flagValues, error) {
	if args == nil {
		args = []string{}
	}
	flagSet := flag.NewFlagSet("inkwell", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	addr := flagSet.String("addr", DefaultAddr, "HTTP listen address")
	token := flagSet.String("token", "", "Auth token for REST/WS")
	dataDir := flagSet.String("data-dir", "", "Directory for settings and the internal workspace")
	internalRoot := flagSet.String("internal-root", "", "Internal workspace directory")
	root := flagSet.String("root", "", "Folder to open at startup")
	watchSettle := flagSet.Duration("watch-settle", DefaultWatchSettle, "Quiet period before a change notification")
	configFile := flagSet.String("config", "", "Settings file path")
	verbose := flagSet.Bool("verbose", false, "Enable verbose logging")
	quiet := flagSet.Bool("quiet", false, "Reduce logging to warnings")
	help := flagSet.Bool("help", false, "Show help")
	version := flagSet.Bool("version", false, "Print version and exit")
	helpShort := flagSet.Bool("h", false, "Show help")
	versionShort := flagSet.Bool("v", false, "Print version and exit")

	flagSet.Usage = func() {
		printHelp(flagSet.Output())
	}

	if err := flagSet.Parse(args); err != nil {
		return flagValues{}, err
	}
	if flagSet.NArg() > 0 {
		return flagValues{}, fmt.Errorf("unexpected argument %q", flagSet.Arg(0))
	}

	set := make(map[string]bool)
	flagSet.Visit(func(flagValue *flag.Flag) {
		set[flagValue.Name] = true
	})

	flags := flagValues{
		Addr:         *addr,
		Token:        *token,
		DataDir:      *dataDir,
		InternalRoot: *internalRoot,
		Root:         *root,
		WatchSettle:  *watchSettle,
		ConfigFile:   *configFile,
		Verbose:      *verbose,
		Quiet:        *quiet,
		Help:         *help || *helpShort,
		Version:      *version || *versionShort,
		Set:          set,
	}

	if flags.Help {
		flagSet.SetOutput(helpOutput)
		flagSet.Usage()
		return flags, flag.ErrHelp
	}
	return flags, nil
}

type helpOption struct {
	Name string
	Desc string
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: inkwell [options]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Inkwell markdown workspace server")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")

	writeOptionGroup(out, "Server", []helpOption{
		{Name: "--addr HOST:PORT", Desc: fmt.Sprintf("HTTP listen address (env: INKWELL_ADDR, default: %s)", DefaultAddr)},
		{Name: "--token TOKEN", Desc: "Auth token for REST/WS (env: INKWELL_TOKEN, default: none)"},
	})

	writeOptionGroup(out, "Workspace", []helpOption{
		{Name: "--data-dir DIR", Desc: "Settings and internal workspace (env: INKWELL_DATA_DIR, default: user config dir)"},
		{Name: "--internal-root DIR", Desc: "Internal workspace (env: INKWELL_INTERNAL_ROOT, default: <data-dir>/workspace)"},
		{Name: "--root DIR", Desc: "Folder to open at startup (env: INKWELL_ROOT, default: last folder)"},
		{Name: "--watch-settle DURATION", Desc: "Quiet period before notifying, 0 disables (env: INKWELL_WATCH_SETTLE, default: 75ms)"},
		{Name: "--config FILE", Desc: "Settings file (env: INKWELL_CONFIG, default: <data-dir>/" + DefaultFileName + ")"},
	})

	writeOptionGroup(out, "Common", []helpOption{
		{Name: "--verbose", Desc: "Enable verbose logging (default: false)"},
		{Name: "--quiet", Desc: "Reduce logging to warnings (default: false)"},
		{Name: "--help", Desc: "Show this help message"},
		{Name: "--version", Desc: "Print version and exit"},
	})

	fmt.Fprintln(out, "Settings file < environment variables < CLI flags.")
}

func writeOptionGroup(out io.Writer, title string, options []helpOption) {
	fmt.Fprintf(out, "  %s:\n", title)
	for _, option := range options {
		fmt.Fprintf(out, "    %-30s %s\n", option.Name, option.Desc)
	}
	fmt.Fprintln(out, "")
}
