package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	vehicle3d "github.com/flywave/go-vehicle3d"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// assembleDoc 装配命令的输入文档
type assembleDoc struct {
	Options   map[vehicle3d.Category][]string `yaml:"options"`
	URIs      map[vehicle3d.Category]string   `yaml:"uris"`
	Catalog   []vehicle3d.CatalogMaterial     `yaml:"catalog"`
	Materials []vehicle3d.MaterialSelection   `yaml:"materials"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "vehicle3d",
		Short:        "vehicle asset and material resolution tools",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file")

	load := func() (vehicle3d.Config, *slog.Logger, error) {
		cfg := vehicle3d.DefaultConfig()
		if configPath != "" {
			var err error
			if cfg, err = vehicle3d.LoadConfig(configPath); err != nil {
				return cfg, nil, err
			}
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
		return cfg, logger, nil
	}

	root.AddCommand(newMeshesCmd(load), newValidateCmd(load), newAssembleCmd(load))
	return root
}

type loadFunc func() (vehicle3d.Config, *slog.Logger, error)

func newMeshesCmd(load loadFunc) *cobra.Command {
	var subassembly string
	cmd := &cobra.Command{
		Use:   "meshes <model.glb>",
		Short: "list mesh names of a model and check them against a subassembly's pattern rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			p := cfg.NewPipeline(logger, vehicle3d.WithAssetRoot(""))
			res := p.Loader.LoadURI(cmd.Context(), args[0], nil)
			if res.Err != nil {
				return res.Err
			}
			defer res.Model.Dispose()

			out := cmd.OutOrStdout()
			for _, name := range vehicle3d.ListMeshNames(res.Model.Root()) {
				fmt.Fprintln(out, name)
			}
			if subassembly == "" {
				return nil
			}
			meta, ok := p.Registry.Get(vehicle3d.SubassemblyId(subassembly))
			if !ok {
				return fmt.Errorf("no registry entry for %q", subassembly)
			}
			report(out, res.Model.Root(), meta.MaterialMapping)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subassembly, "subassembly", "s", "", "check against this subassembly's pattern rules")
	return cmd
}

func report(out io.Writer, root *vehicle3d.Node, rules []vehicle3d.MeshPatternRule) int {
	problems := 0
	for _, name := range vehicle3d.FindUnmatchedMeshes(root, rules) {
		fmt.Fprintf(out, "  unmatched: %s\n", name)
		problems++
	}
	for _, a := range vehicle3d.FindAmbiguousMeshes(root, rules) {
		fmt.Fprintf(out, "  ambiguous: %s %v -> %v\n", a.Mesh, a.Patterns, a.Zones)
		problems++
	}
	return problems
}

func newValidateCmd(load loadFunc) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "load every registered asset and report unmatched or ambiguous meshes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			changed := make(chan string, 64)
			p := cfg.NewPipeline(logger, vehicle3d.WithSourceChanged(func(path string) {
				select {
				case changed <- path:
				default:
					logger.Warn("dropped asset change notification", "path", path)
				}
			}))
			out := cmd.OutOrStdout()

			validate := func(ctx context.Context, id vehicle3d.SubassemblyId) int {
				res := p.Loader.Load(ctx, id)
				if !res.HasAsset {
					return 0
				}
				if res.Err != nil {
					fmt.Fprintf(out, "%s: %v\n", id, res.Err)
					return 1
				}
				defer res.Model.Dispose()
				meta, _ := p.Registry.Get(id)
				fmt.Fprintf(out, "%s: %d meshes\n", id, len(vehicle3d.ListMeshNames(res.Model.Root())))
				return report(out, res.Model.Root(), meta.MaterialMapping)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			problems := 0
			for _, id := range p.Registry.ListRegistered() {
				problems += validate(ctx, id)
			}
			if !watch && !cfg.Watch {
				if problems > 0 {
					return fmt.Errorf("%d problems found", problems)
				}
				return nil
			}

			watchErr := make(chan error, 1)
			go func() { watchErr <- p.Loader.Watch(ctx) }()
			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-watchErr:
					return err
				case path := <-changed:
					for _, id := range p.Registry.ListRegistered() {
						if meta, ok := p.Registry.Get(id); ok && meta.Path == path {
							validate(ctx, id)
						}
					}
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-validate assets when they change on disk")
	return cmd
}

func newAssembleCmd(load loadFunc) *cobra.Command {
	var selectionPath, outPath string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "resolve a selection document into a dressed vehicle and write it as GLB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(selectionPath)
			if err != nil {
				return err
			}
			var doc assembleDoc
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse %s: %w", selectionPath, err)
			}

			p := cfg.NewPipeline(logger)
			mats := p.Factory.Resolve(doc.Materials, doc.Catalog)
			defer mats.Release()
			asm := vehicle3d.NewAssembly(p.Loader, vehicle3d.DefaultPolicies(), vehicle3d.WithAssemblyLogger(logger))
			defer asm.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			root, err := asm.UpdateSettled(ctx, vehicle3d.AssemblySelection{Options: doc.Options, URIs: doc.URIs}, mats)
			if err != nil {
				return err
			}
			gdoc, err := vehicle3d.ExportGltf(root)
			if err != nil {
				return err
			}
			bin, err := vehicle3d.GetGltfBinary(gdoc, 4)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, bin, 0o644); err != nil {
				return err
			}
			for _, c := range vehicle3d.AllCategories() {
				if v, ok := asm.View(c); ok && v.State != vehicle3d.StateNoOption {
					logger.Info("assembled", "category", c, "option", v.Option, "state", v.State)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&selectionPath, "selection", "s", "", "YAML selection document")
	cmd.Flags().StringVarP(&outPath, "out", "o", "vehicle.glb", "output GLB path")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "give up waiting for asset loads after this long")
	cmd.MarkFlagRequired("selection")
	return cmd
}
