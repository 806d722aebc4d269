// Package cli wires the collection runner behind the pmrun commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alcrishub/postman-runtime/internal/collection"
	"github.com/alcrishub/postman-runtime/internal/config"
	"github.com/alcrishub/postman-runtime/internal/cookies"
	"github.com/alcrishub/postman-runtime/internal/executor"
	"github.com/alcrishub/postman-runtime/internal/history"
	"github.com/alcrishub/postman-runtime/internal/prepare"
	"github.com/alcrishub/postman-runtime/internal/runner"
	"github.com/alcrishub/postman-runtime/internal/scope"
	"github.com/alcrishub/postman-runtime/internal/types"
)

// ErrItemsFailed is returned when the run completed but some items failed
var ErrItemsFailed = errors.New("items failed")

// RunOptions contains options for running a collection
type RunOptions struct {
	CollectionPath  string
	EnvironmentPath string
	GlobalsPath     string
	VaultPath       string
	Vars            []string // key=value, highest precedence
	Items           []string // item or folder names; empty runs everything
	Cookies         []string // url=Set-Cookie header value, seeded into the jar
	OutputFormat    string   // text, json, yaml
	Filter          string   // JMESPath applied to the run report
	ShowFull        bool
	Protocol        string
	Timeout         time.Duration
	Insecure        bool
	History         bool

	Config *config.Config
	Stdout io.Writer
	Logger *zap.Logger
}

func (o *RunOptions) defaults() {
	if o.Config == nil {
		o.Config = config.NewDefaultConfig()
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.OutputFormat == "" {
		o.OutputFormat = "text"
	}
}

// Run loads the collection and its variable files, runs the selected items
// and writes the report. Interrupting ctx stops the run after the current item.
func Run(ctx context.Context, opts RunOptions) (*runner.RunResult, error) {
	opts.defaults()
	switch opts.OutputFormat {
	case "text", "json", "yaml":
	default:
		return nil, invalid(fmt.Errorf("unknown output format %q (use text, json or yaml)", opts.OutputFormat))
	}

	coll, err := collection.LoadCollection(opts.CollectionPath)
	if err != nil {
		return nil, invalid(err)
	}
	items, err := collection.Select(coll, opts.Items)
	if err != nil {
		return nil, invalid(err)
	}

	chain, err := buildChain(opts, coll)
	if err != nil {
		return nil, invalid(err)
	}

	jar, err := cookies.New()
	if err != nil {
		return nil, err
	}
	if err := seedCookies(jar, opts.Cookies); err != nil {
		return nil, invalid(err)
	}

	exec, err := executor.New(executorConfig(opts), jar, opts.Logger)
	if err != nil {
		return nil, err
	}
	defer exec.Close()

	materializer := prepare.New(
		scope.NewResolver(chain, scope.WithLogger(opts.Logger)),
		prepare.WithCookieJar(jar),
		prepare.WithFileReader(prepare.DirReader{Root: filepath.Dir(opts.CollectionPath)}),
		prepare.WithCollectionAuth(coll.Auth),
		prepare.WithSystemHeaders(systemHeaders(opts.Config.Headers)),
		prepare.WithDefaultProtocol(firstNonEmpty(opts.Protocol, opts.Config.Network.Protocol)),
		prepare.WithLogger(opts.Logger),
	)

	coordinator := runner.New(materializer, exec, runner.WithLogger(opts.Logger))

	var handler runner.Handler = runner.HandlerFuncs{}
	if opts.OutputFormat == "text" && opts.Filter == "" {
		handler = &textPrinter{w: opts.Stdout, full: opts.ShowFull}
	}
	result := coordinator.Run(ctx, items, handler)

	if opts.History || opts.Config.History.Enabled {
		if err := saveHistory(opts, collectionName(coll, opts.CollectionPath), result); err != nil {
			opts.Logger.Warn("failed to save run history", zap.Error(err))
		}
	}

	if opts.OutputFormat != "text" || opts.Filter != "" {
		report := NewReport(collectionName(coll, opts.CollectionPath), result, opts.ShowFull)
		if err := writeReport(opts.Stdout, report, opts.OutputFormat, opts.Filter); err != nil {
			return result, err
		}
	} else {
		writeSummary(opts.Stdout, result)
	}

	if result.CompletionError != nil {
		return result, result.CompletionError
	}
	if failed := result.Failed(); failed > 0 {
		return result, fmt.Errorf("%w: %d of %d", ErrItemsFailed, failed, len(result.Records))
	}
	return result, nil
}

// invalid marks a failure found before the run starts; no run events are emitted for it
func invalid(err error) error {
	return fmt.Errorf("%w: %w", runner.ErrInvalidConfig, err)
}

// buildChain orders the sets local, environment, collection, globals, vault
func buildChain(opts RunOptions, coll *types.Collection) (*scope.Chain, error) {
	local, err := parseVars(opts.Vars)
	if err != nil {
		return nil, err
	}

	env, err := loadSet(opts.EnvironmentPath, scope.KindEnvironment)
	if err != nil {
		return nil, err
	}
	globals, err := loadSet(opts.GlobalsPath, scope.KindGlobal)
	if err != nil {
		return nil, err
	}
	vault, err := loadSet(opts.VaultPath, scope.KindVault)
	if err != nil {
		return nil, err
	}

	sets := []*scope.VariableSet{
		scope.NewVariableSet("cli", scope.KindLocal, local),
		env,
		scope.NewVariableSet(coll.Info.Name, scope.KindCollection, coll.Variable),
		globals,
		vault,
	}
	return scope.NewChain(sets...), nil
}

// loadSet returns nil when path is empty; the chain skips nil sets
func loadSet(path string, kind scope.Kind) (*scope.VariableSet, error) {
	if path == "" {
		return nil, nil
	}
	name, entries, err := collection.LoadVariables(path)
	if err != nil {
		return nil, err
	}
	return scope.NewVariableSet(name, kind, entries), nil
}

func parseVars(pairs []string) ([]types.VariableEntry, error) {
	entries := make([]types.VariableEntry, 0, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q (expected key=value)", pair)
		}
		entries = append(entries, types.VariableEntry{Key: key, Value: value})
	}
	return entries, nil
}

// seedCookies stores url=Set-Cookie pairs. The URL ends at the first '='.
func seedCookies(jar *cookies.Jar, pairs []string) error {
	for _, pair := range pairs {
		rawURL, setCookie, ok := strings.Cut(pair, "=")
		if !ok || rawURL == "" || setCookie == "" {
			return fmt.Errorf("invalid cookie %q (expected url=name=value; attrs)", pair)
		}
		if err := jar.SetCookieString(rawURL, setCookie); err != nil {
			return err
		}
	}
	return nil
}

func executorConfig(opts RunOptions) executor.Config {
	cfg := executor.DefaultConfig()
	network := opts.Config.Network
	cfg.Timeout = network.Timeout
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}
	cfg.FollowRedirects = network.FollowRedirects
	cfg.MaxRedirects = network.MaxRedirects
	if network.InsecureSkipVerify || opts.Insecure {
		cfg.TLS = &executor.TLSConfig{InsecureSkipVerify: true}
	}
	return cfg
}

func systemHeaders(cfg config.HeadersConfig) prepare.SystemHeaders {
	sys := prepare.DefaultSystemHeaders(cfg.UserAgent)
	sys.PostmanToken = cfg.PostmanToken
	sys.AcceptEncoding = cfg.AcceptEncoding
	return sys
}

func saveHistory(opts RunOptions, name string, result *runner.RunResult) error {
	path, err := config.ExpandPath(opts.Config.History.DatabasePath)
	if err != nil {
		return err
	}
	mgr, err := history.NewManager(path)
	if err != nil {
		return err
	}
	defer mgr.Close()
	return mgr.Save(name, result)
}

func collectionName(c *types.Collection, path string) string {
	if c != nil && c.Info.Name != "" {
		return c.Info.Name
	}
	return filepath.Base(path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
