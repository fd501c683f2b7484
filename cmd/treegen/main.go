package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/friggog/tree-gen/internal/config"
	"github.com/friggog/tree-gen/internal/export"
	"github.com/friggog/tree-gen/internal/generator"
	"github.com/friggog/tree-gen/internal/logging"
	"github.com/friggog/tree-gen/internal/params"
	"github.com/friggog/tree-gen/internal/preview"
	"github.com/friggog/tree-gen/internal/server"
	"github.com/friggog/tree-gen/internal/store"
)

type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

// treeFlags select what to grow.
type treeFlags struct {
	preset     string
	paramsFile string
	seed       uint64
}

func (f *treeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.preset, "preset", "p", "", "built-in preset name (see `treegen presets`)")
	cmd.Flags().StringVar(&f.paramsFile, "params", "", "custom parameter set file (YAML or JSON)")
	cmd.Flags().Uint64VarP(&f.seed, "seed", "s", 0, "random seed (default from config)")
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "treegen",
		Short:        "Parametric tree skeleton and mesh generator",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "treegen.yaml", "configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.generateCmd(),
		a.previewCmd(),
		a.presetsCmd(),
		a.serveCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads the configuration and builds the logger. A missing
// configuration file falls back to built-in defaults; serve writes it out.
func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Annotations["config"] == "skip" {
		a.cfg = config.Default()
		a.logger = zap.NewNop()
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Annotations["config"] == "write" {
			if err := config.WriteDefault(a.configPath); err != nil {
				return fmt.Errorf("write default config: %w", err)
			}
		}
		cfg = config.Default()
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	return nil
}

// resolveParams picks the parameter set: command flags, then the
// environment payload, then the configuration file.
func (a *app) resolveParams(f treeFlags) (*params.ParameterSet, error) {
	switch {
	case f.paramsFile != "":
		return params.LoadFile(f.paramsFile)
	case f.preset != "":
		return params.Preset(f.preset)
	}
	if p, ok, err := paramsFromEnv(); err != nil || ok {
		return p, err
	}
	if a.cfg.Generation.ParamsFile != "" {
		return params.LoadFile(a.cfg.Generation.ParamsFile)
	}
	return params.Preset(a.cfg.Generation.Preset)
}

func (a *app) seed(cmd *cobra.Command, f treeFlags) uint64 {
	if cmd.Flags().Changed("seed") {
		return f.seed
	}
	return a.cfg.Generation.Seed
}

func (a *app) generator() (*generator.Generator, func(), error) {
	st, err := store.Open(a.cfg.Cache)
	if err != nil {
		return nil, nil, fmt.Errorf("open mesh cache: %w", err)
	}
	closeStore := func() {
		if st == nil {
			return
		}
		if err := st.Close(); err != nil {
			a.logger.Warn("close mesh cache", zap.Error(err))
		}
	}
	opts := generator.Options{Workers: a.cfg.Generation.Workers, Mesh: a.cfg.MeshOptions()}
	return generator.New(opts, st, a.logger), closeStore, nil
}

func (a *app) run(cmd *cobra.Command, f treeFlags) (*generator.Result, error) {
	p, err := a.resolveParams(f)
	if err != nil {
		return nil, err
	}
	gen, closeStore, err := a.generator()
	if err != nil {
		return nil, err
	}
	defer closeStore()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	if timeout := a.cfg.Generation.Timeout.Duration(); timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return gen.Generate(ctx, p, a.seed(cmd, f))
}

func (a *app) generateCmd() *cobra.Command {
	var (
		f        treeFlags
		format   string
		outDir   string
		noLeaves bool
		withPNG  bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a tree mesh and write it to the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = a.cfg.Output.Format
			}
			if outDir == "" {
				outDir = a.cfg.Output.Directory
			}
			res, err := a.run(cmd, f)
			if err != nil {
				return err
			}
			d := res.Descriptor
			leaves := a.cfg.Output.Leaves && !noLeaves
			path, err := export.SaveFile(outDir, d, format, export.OBJOptions{Foliage: leaves})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d vertices, %d faces, %d leaves, %d blossoms -> %s\n",
				d.Name, len(d.Vertices), len(d.Faces), len(d.Leaves), len(d.Blossoms), path)

			if withPNG || (a.cfg.Output.Preview && !cmd.Flags().Changed("preview")) {
				png, err := preview.Save(d, outDir, preview.Options{Size: a.cfg.Output.PreviewSize})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "preview -> %s\n", png)
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: obj or json (default from config)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default from config)")
	cmd.Flags().BoolVar(&noLeaves, "no-leaves", false, "omit leaf cards from OBJ output")
	cmd.Flags().BoolVar(&withPNG, "preview", false, "also render a PNG preview")
	return cmd
}

func (a *app) previewCmd() *cobra.Command {
	var (
		f       treeFlags
		outDir  string
		size    int
		azimuth float64
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render a PNG preview of a tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				outDir = a.cfg.Output.Directory
			}
			if size <= 0 {
				size = a.cfg.Output.PreviewSize
			}
			res, err := a.run(cmd, f)
			if err != nil {
				return err
			}
			path, err := preview.Save(res.Descriptor, outDir, preview.Options{Size: size, Azimuth: azimuth})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default from config)")
	cmd.Flags().IntVar(&size, "size", 0, "image edge length in pixels (default from config)")
	cmd.Flags().Float64Var(&azimuth, "azimuth", 0, "camera rotation about the vertical axis, degrees")
	return cmd
}

func (a *app) presetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "presets",
		Short:       "List the built-in presets",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"config": "skip"},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range params.PresetNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:         "show NAME",
		Short:       "Print a preset as YAML",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"config": "skip"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := params.Preset(args[0])
			if err != nil {
				return err
			}
			data, err := params.Encode(p)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:         "serve",
		Short:       "Serve tree generation over HTTP",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"config": "write"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Server.Listen = listen
			}
			gen, closeStore, err := a.generator()
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			if err := server.New(a.cfg, gen, a.logger).Run(ctx); err != nil {
				return fmt.Errorf("server exited: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default from config)")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:         "init [PATH]",
		Short:       "Write the default configuration",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"config": "skip"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "default configuration written to %s\n", path)
			return nil
		},
	})
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
