package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tordrt/reintrospect"
	"github.com/tordrt/reintrospect/internal/config"
	"github.com/tordrt/reintrospect/internal/formatter"
)

// app carries the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:   "reintrospect [schema-file]",
		Short: "Regenerate a Prisma schema from the live database",
		Long: `Reintrospect reads the structure of a PostgreSQL, CockroachDB, MySQL, SQLite or SQL Server database
and rewrites the schema document to match it, keeping model names, @map renames, comments,
custom attributes and the relations the database does not enforce.`,
		Args:              cobra.MaximumNArgs(1),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runReintrospect,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "Config file (default: ./reintrospect.yaml)")
	pf.String("url", "", "Database connection URL (default: the datasource url)")
	pf.String("provider", "", "Datasource provider (default: the datasource provider)")
	pf.StringP("db-schema", "s", "", "Database schema name (default: from the URL)")
	pf.StringSliceP("tables", "t", nil, "Specific tables (comma-separated, optional)")
	pf.StringSlice("exclude", nil, "Tables to leave out (comma-separated, optional)")
	pf.String("log-level", "warn", "Log level: trace, debug, info, warn or error")
	pf.Duration("timeout", 0, "Database timeout (default: 30s)")

	rootCmd.Flags().String("naming", "preserve", "Naming of new models and fields: preserve or pascal")
	rootCmd.Flags().BoolP("write", "w", false, "Write the result back to the schema file")

	bindFlags(a.v, pf, "url", "provider", "db-schema", "tables", "exclude", "log-level", "timeout")
	bindFlags(a.v, rootCmd.Flags(), "naming", "write")

	rootCmd.AddCommand(newFormatCmd(a), newCatalogCmd(a))
	return rootCmd
}

func newFormatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format [schema-file]",
		Short: "Format a schema document without reading the database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.schemaPath(args)
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read schema: %w", err)
			}
			out, err := reintrospect.FormatSource(src)
			if err != nil {
				return err
			}
			write, _ := cmd.Flags().GetBool("write")
			return a.emit(cmd.OutOrStdout(), path, out, write)
		},
	}
	cmd.Flags().BoolP("write", "w", false, "Write the result back to the schema file")
	return cmd
}

func newCatalogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [schema-file]",
		Short: "Print the database catalog as compact text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.schemaPath(args)
			url, provider, err := a.connection(path)
			if err != nil {
				return err
			}

			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			cat, err := reintrospect.ExtractCatalog(ctx, provider, url, a.options(path))
			if err != nil {
				return err
			}
			if err := formatter.NewCatalogFormatter(cmd.OutOrStdout()).Format(cat); err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			return nil
		},
	}
}

// bindFlags binds each flag to the config key of the same name, so that
// a flag set on the command line wins over the environment and the file.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if err := v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.log = logrus.New()
	a.log.SetOutput(cmd.ErrOrStderr())
	a.log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	a.log.SetLevel(cfg.Level())
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.WithField("file", used).Debug("using config file")
	}
	return nil
}

func (a *app) runReintrospect(cmd *cobra.Command, args []string) error {
	path := a.schemaPath(args)
	ctx, cancel := a.context(cmd.Context())
	defer cancel()

	src, err := os.ReadFile(path)
	var out string
	switch {
	case err == nil:
		out, err = reintrospect.ReintrospectSource(ctx, src, a.options(path))
		if err != nil {
			return err
		}
	case errors.Is(err, fs.ErrNotExist) && a.cfg.URL != "":
		a.log.WithField("schema", path).Info("schema file not found, generating a new document")
		out, err = a.generate(ctx, path)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("failed to read schema: %w", err)
	}

	return a.emit(cmd.OutOrStdout(), path, out, a.cfg.Write)
}

// generate renders a document for the catalog alone. It carries no
// datasource block; the caller adds one before the document is usable.
func (a *app) generate(ctx context.Context, path string) (string, error) {
	opts := a.options(path)
	cat, err := reintrospect.ExtractCatalog(ctx, a.cfg.Provider, a.cfg.URL, opts)
	if err != nil {
		return "", err
	}
	doc, err := reintrospect.Reconcile(cat, nil, opts)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := reintrospect.FormatDocument(doc, &buf); err != nil {
		return "", fmt.Errorf("failed to format output: %w", err)
	}
	return buf.String(), nil
}

// connection returns the URL and provider of the database to read: the
// flags when set, else the datasource of the schema document.
func (a *app) connection(path string) (url, provider string, err error) {
	if a.cfg.URL != "" {
		return a.cfg.URL, a.cfg.Provider, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read schema: %w", err)
	}
	doc, err := reintrospect.ParseDocument(src)
	if err != nil {
		return "", "", err
	}
	ds := doc.Datasource()
	if ds == nil {
		return "", "", fmt.Errorf("%w: no datasource block", reintrospect.ErrMalformedPriorDocument)
	}
	url, err = reintrospect.ResolveURL(ds, filepath.Dir(path))
	if err != nil {
		return "", "", err
	}
	provider = a.cfg.Provider
	if provider == "" {
		provider = ds.Provider()
	}
	return url, provider, nil
}

func (a *app) emit(w io.Writer, path, out string, write bool) error {
	if !write {
		_, err := io.WriteString(w, out)
		return err
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}
	a.log.WithField("schema", path).Info("schema written")
	return nil
}

func (a *app) schemaPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.cfg.Schema
}

func (a *app) options(path string) *reintrospect.Options {
	return &reintrospect.Options{
		Tables:        a.cfg.Tables,
		ExcludeTables: a.cfg.Exclude,
		SchemaName:    a.cfg.DBSchema,
		URL:           a.cfg.URL,
		BaseDir:       filepath.Dir(path),
		Naming:        a.cfg.NamingStrategy(),
		Provider:      a.cfg.Provider,
		Logger:        a.log,
	}
}

func (a *app) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if a.cfg.Timeout > 0 {
		return context.WithTimeout(parent, a.cfg.Timeout)
	}
	return context.WithCancel(parent)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
