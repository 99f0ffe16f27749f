package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docrag/internal/config"
	"docrag/internal/domain"
	"docrag/internal/logging"
	"docrag/internal/service"
	"docrag/internal/tui"
)

type app struct {
	cfgPath  string
	logLevel string
	cfg      *config.AppConfig
	logger   *zap.Logger
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "docrag",
		Short:         "answer questions over a local document folder",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to YAML config file (default ./config.yaml or ~/.config/docrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level from the config")

	rootCmd.AddCommand(a.indexCmd(), a.queryCmd(), a.tuiCmd(), a.dropCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, domain.ErrConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func (a *app) init() error {
	_ = godotenv.Load()

	var err error
	if a.cfgPath == "" {
		a.cfg, _, err = config.LoadDefault()
	} else {
		a.cfg, err = config.Load(a.cfgPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	a.logger, err = logging.New(a.cfg.Log.Level, a.cfg.Log.Format)
	return err
}

func (a *app) indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index [path|glob ...]",
		Short: "extract, chunk and embed documents, then persist the index",
		Long:  "Builds the index from the given files, globs or folders (default: data_dir) and saves it to the configured store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.Close()
			report, err := svc.IngestPaths(cmd.Context(), a.inputs(args))
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
}

func (a *app) queryCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "answer a single question from the persisted index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if topK > 0 {
				a.cfg.Index.TopK = topK
			}
			svc, err := newService(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.Close()
			if err := a.ensureIndex(cmd.Context(), svc, nil); err != nil {
				return err
			}
			ans := svc.Answer(cmd.Context(), strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if ans.Truncated {
				fmt.Fprintln(out, "(query truncated)")
			}
			for i, r := range ans.Sources {
				fmt.Fprintf(out, "Result %d: %s (Source: %s, score %.4f)\n", i+1, r.Chunk.Text, r.Chunk.FileName(), r.Score)
			}
			if len(ans.Sources) > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, ans.Text)
			if ans.Status == domain.AnswerError {
				return ans.Err
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (default index.top_k)")
	return cmd
}

func (a *app) tuiCmd() *cobra.Command {
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "tui [path|glob ...]",
		Short: "interactive question answering",
		Long:  "Opens the persisted index, or builds one from the given paths (default: data_dir) when none exists or --rebuild is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.Close()
			if rebuild && len(args) == 0 {
				args = a.inputs(nil)
			}
			if err := a.ensureIndex(cmd.Context(), svc, args); err != nil {
				return err
			}
			summary := fmt.Sprintf("%d chunks indexed", svc.Index().Len())
			m := tui.New(svc, summary, 2*time.Minute)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild the index even if one is persisted")
	return cmd
}

func (a *app) dropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop",
		Short: "delete the persisted index",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("%w: store.type is none, nothing to drop", domain.ErrConfig)
			}
			defer store.Close()
			existed, err := store.Drop(cmd.Context())
			if err != nil {
				return err
			}
			if existed {
				fmt.Fprintf(cmd.OutOrStdout(), "Index %s deleted.\n", store.Name())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Index %s does not exist.\n", store.Name())
			}
			return nil
		},
	}
}

func (a *app) inputs(args []string) []string {
	if len(args) > 0 {
		return args
	}
	return []string{a.cfg.DataDir}
}

// ensureIndex builds from paths when given, otherwise loads the persisted
// index and falls back to building from data_dir when there is none.
func (a *app) ensureIndex(ctx context.Context, svc *service.RAGService, paths []string) error {
	if len(paths) == 0 {
		err := svc.Load(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrConfig) {
			return err
		}
		a.logger.Info("no persisted index, building", zap.String("data_dir", a.cfg.DataDir))
	}
	report, err := svc.IngestPaths(ctx, a.inputs(paths))
	if err != nil {
		return err
	}
	a.logger.Info("built index", zap.Int("documents", report.Documents), zap.Int("chunks", report.Chunks))
	return nil
}

func printReport(cmd *cobra.Command, r *service.BuildReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d chunks from %d documents in %s.\n", r.Chunks, r.Documents, r.Duration.Round(time.Millisecond))
	for _, o := range r.Oversized {
		fmt.Fprintf(out, "  warning: %s chunk %d re-encodes to %d tokens (limit %d)\n", o.FileName, o.Index, o.Tokens, o.Limit)
	}
	if r.Persisted {
		fmt.Fprintln(out, "Index saved.")
	}
}
