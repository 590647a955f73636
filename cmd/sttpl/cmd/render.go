package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oarkflow/sttpl"
)

var (
	dataFile string
	width    int
	watch    bool
)

var renderCmd = &cobra.Command{
	Use:   "render FILE",
	Short: "Render a template with attributes from a YAML or TOML file",
	Long: `Render FILE to standard output. Files next to FILE whose names start
with an underscore and share its extension are callable as templates, so
_row.st is available as <row()>. A FILE without an extension gets the
configured template extension, so "render page" renders page.st.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := templatePath(args[0], cfg.Template.Extension)
		data, err := loadData(dataFile)
		if err != nil {
			printError("loading data", err)
			return err
		}
		lineWidth := cfg.Template.LineWidth
		if cmd.Flags().Changed("width") {
			lineWidth = width
		}
		start, stop := cfg.Delimiters()
		opts := []sttpl.Option{
			sttpl.WithDelims(start, stop),
			sttpl.WithNewline(cfg.Template.Newline),
			sttpl.WithLineWidth(lineWidth),
		}
		if watch {
			return renderWatch(cmd.Context(), cmd.OutOrStdout(), file, data, opts)
		}
		tmpl, err := sttpl.NewFileCache(1).CompileFile(file, opts...)
		if err != nil {
			printError("compiling", err)
			return err
		}
		logger.Debug("rendering", "file", file, "width", lineWidth)
		if err := tmpl.Render(cmd.OutOrStdout(), data); err != nil {
			printError("rendering", err)
			return err
		}
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVarP(&dataFile, "data", "d", "", "attribute file (.yaml, .yml or .toml)")
	renderCmd.Flags().IntVarP(&width, "width", "w", 0, "line width, 0 disables wrapping (default from config)")
	renderCmd.Flags().BoolVar(&watch, "watch", false, "re-render whenever the template changes")
	rootCmd.AddCommand(renderCmd)
}

// templatePath appends ext to names given without an extension.
func templatePath(name, ext string) string {
	if ext == "" || filepath.Ext(name) != "" {
		return name
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return name + ext
}

// loadData decodes the attribute file by extension.
func loadData(path string) (map[string]any, error) {
	data := make(map[string]any)
	if path == "" {
		return data, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(content, &data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported data file %s: want .yaml, .yml or .toml", path)
	}
	return data, nil
}

func renderWatch(ctx context.Context, out io.Writer, file string, data map[string]any, opts []sttpl.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rm := sttpl.NewReloadManager(cfg.Watch.Interval.Duration,
		sttpl.WithReloadLogger(logger),
		sttpl.WithCompileOptions(opts...),
	)
	tmpl, err := rm.WatchFile(file)
	if err != nil {
		printError("compiling", err)
		return err
	}
	if err := tmpl.Render(out, data); err != nil {
		logger.Error("render failed", "file", file, "err", err)
	}
	rm.AddCallback(func(ev sttpl.ReloadEvent) {
		if ev.Err != nil {
			return
		}
		fmt.Fprintf(out, "\n--- %s ---\n", ev.File)
		if err := ev.Template.Render(out, data); err != nil {
			logger.Error("render failed", "file", ev.File, "err", err)
		}
	})
	rm.Start(ctx)
	defer rm.Stop()

	logger.Info("watching for changes", "file", file, "interval", cfg.Watch.Interval.Duration)
	<-ctx.Done()
	return nil
}
