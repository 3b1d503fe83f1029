// bst2go compiles BibTeX styles (.bst) to Go.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/chazu/bst2go/pkg/ast"
	"github.com/chazu/bst2go/pkg/cache"
	"github.com/chazu/bst2go/pkg/compiler"
	"github.com/chazu/bst2go/pkg/config"
	"github.com/chazu/bst2go/pkg/lexer"
	"github.com/chazu/bst2go/pkg/parser"
)

func main() {
	configFlag := cli.NewFlag("config,c", "", "config file (.toml, .yaml or .yml)")
	cacheFlag := cli.NewFlag("cache", "", "compile cache database, overrides config")

	tokenizeCmd := &cli.Command{
		Name:        "tokenize",
		Description: "dump the tokens of .bst files as JSON",
		Action:      tokenizeAct,
		Args:        cli.Args{},
	}

	parseCmd := &cli.Command{
		Name:        "parse",
		Description: "parse .bst files and dump their AST as JSON",
		Action:      parseAct,
		Args:        cli.Args{},
	}

	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile a .bst style or a dumped .json AST to Go",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			configFlag,
			cacheFlag,
			cli.NewFlag("output,o", "", "output file, stdout if empty"),
			cli.NewFlag("package", "", "generated package name, overrides config"),
			cli.NewFlag("no-optimize", false, "disable the IR optimizer"),
		},
	}

	cacheCmd := &cli.Command{
		Name:        "cache",
		Description: "manage the compile cache",
		Flags:       []*cli.Flag{configFlag, cacheFlag},
		Commands: []*cli.Command{{
			Name:        "clear",
			Description: "remove all cached compilations",
			Action:      cacheClearAct,
		}, {
			Name:        "stats",
			Description: "count cached compilations",
			Action:      cacheStatsAct,
		}},
	}

	app := &cli.Command{
		Name:        "bst2go",
		Description: "bst2go compiles BibTeX styles to Go",
		Flags: []*cli.Flag{
			cli.NewFlag("verbose,v", "", "verbose log topics, e.g. eval,opt"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			tokenizeCmd,
			parseCmd,
			compileCmd,
			cacheCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

// rootContext returns a context carrying the root span, after applying the
// verbosity flag.
func rootContext(c *cli.Command) context.Context {
	if v := c.String("verbose"); v != "" {
		tlog.SetVerbosity(v)
	}

	return tlog.ContextWithSpan(context.Background(), tlog.Root())
}

func tokenizeAct(c *cli.Command) error {
	ctx := rootContext(c)

	for _, a := range c.Args {
		f, err := os.Open(a)
		if err != nil {
			return errors.Wrap(err, "open")
		}

		l, err := lexer.NewFromReader(f)
		_ = f.Close()
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		data, err := l.TokenizeJSON()
		if err != nil {
			return errors.Wrap(err, "tokenize %v", a)
		}

		tlog.SpanFromContext(ctx).V("tokens").Printw("tokenized", "name", a, "size", len(data))

		fmt.Println(data)
	}

	return nil
}

func parseAct(c *cli.Command) (err error) {
	ctx := rootContext(c)

	for _, a := range c.Args {
		style, err := loadStyle(ctx, a)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		data, err := ast.Marshal(style)
		if err != nil {
			return errors.Wrap(err, "dump %v", a)
		}

		fmt.Printf("%s\n", data)
	}

	return nil
}

func compileAct(c *cli.Command) (err error) {
	ctx := rootContext(c)

	if len(c.Args) != 1 {
		return errors.New("expected one input file, got %d", len(c.Args))
	}

	name := c.Args[0]

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if p := c.String("package"); p != "" {
		cfg.Package = p
	}
	if c.Bool("no-optimize") {
		cfg.Optimize = false
	}

	src, err := os.ReadFile(name)
	if err != nil {
		return errors.Wrap(err, "read input")
	}

	var (
		store *cache.Store
		key   = cacheKey(name, src, cfg)
	)

	if cfg.Cache != "" {
		store, err = cache.Open(cfg.Cache)
		if err != nil {
			return err
		}

		defer func() {
			if e := store.Close(); err == nil && e != nil {
				err = errors.Wrap(e, "close cache")
			}
		}()

		e, err := store.Get(key)
		switch {
		case err == nil:
			tlog.SpanFromContext(ctx).Printw("cached", "input", name, "id", e.ID, "created", e.CreatedAt)

			report(e.Warnings)

			return writeOutput(c.String("output"), e.Code)
		case !errors.Is(err, cache.ErrNotFound):
			return errors.Wrap(err, "cache")
		}
	}

	style, err := parseStyle(name, src)
	if err != nil {
		return errors.Wrap(err, "%v", name)
	}

	res, err := compiler.Compile(ctx, style, cfg.CompilerOptions())
	if err != nil {
		return errors.Wrap(err, "%v", name)
	}

	report(res.Warnings)

	if store != nil {
		if _, err := store.Put(key, style.Name, res.Code, res.Warnings); err != nil {
			return err
		}
	}

	return writeOutput(c.String("output"), res.Code)
}

func cacheClearAct(c *cli.Command) error {
	store, err := openCache(c)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Clear()
	if err != nil {
		return err
	}

	fmt.Printf("removed %d cached compilations from %s\n", n, store.Path())

	return nil
}

func cacheStatsAct(c *cli.Command) error {
	store, err := openCache(c)
	if err != nil {
		return err
	}
	defer store.Close()

	_, rows, err := store.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d cached compilations\n", store.Path(), rows)

	return nil
}

func openCache(c *cli.Command) (*cache.Store, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	if cfg.Cache == "" {
		return nil, errors.New("no cache configured: use --cache or the config file")
	}

	return cache.Open(cfg.Cache)
}

func loadConfig(c *cli.Command) (cfg *config.Config, err error) {
	cfg = config.Default()

	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}

	if p := c.String("cache"); p != "" {
		cfg.Cache = p
	}

	return cfg, nil
}

func loadStyle(ctx context.Context, name string) (*ast.Style, error) {
	src, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "name", name, "size", len(src))

	return parseStyle(name, src)
}

// parseStyle accepts .bst sources and ASTs dumped by the parse command.
// cacheKey covers the input name, which names the style and picks its parser.
func cacheKey(name string, src []byte, cfg *config.Config) string {
	return cache.Key(src, filepath.Base(name), cfg.Fingerprint(), compiler.Version)
}

func parseStyle(name string, src []byte) (*ast.Style, error) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	if strings.EqualFold(filepath.Ext(name), ".json") {
		style, err := ast.ParseBytes(src)
		if err != nil {
			return nil, err
		}

		if style.Name == "" {
			style.Name = base
		}

		return style, nil
	}

	return parser.Parse(base, string(src))
}

func report(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
}

func writeOutput(path, code string) error {
	if path == "" {
		_, err := fmt.Print(code)
		return err
	}

	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return errors.Wrap(err, "write output")
	}

	return nil
}
