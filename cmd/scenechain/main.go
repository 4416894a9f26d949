package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/scenechain/internal/clips"
	"github.com/kikiluvv/scenechain/internal/config"
	"github.com/kikiluvv/scenechain/internal/ledger"
	"github.com/kikiluvv/scenechain/internal/logging"
	"github.com/kikiluvv/scenechain/internal/pipeline"
	"github.com/kikiluvv/scenechain/pkg/util"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "scenechain",
	Short:         "scenechain - scene-chained marketing video generator",
	Long:          "Generates a storyboard scene by scene, seeding each clip with the best frame of the last, then stitches and brands the result.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	generateCmd.Flags().StringSlice("storyboard", nil, "storyboard YAML file (repeatable; jobs run concurrently)")
	generateCmd.Flags().String("seed-uri", "", "seed image for the first scene, overrides the storyboard")
	generateCmd.Flags().Bool("no-stitch", false, "keep only the first clip instead of stitching")
	generateCmd.Flags().Bool("no-transitions", false, "hard cuts instead of crossfades")
	generateCmd.Flags().Bool("track", false, "also render the motion-tracked logo variant")
	generateCmd.Flags().Bool("keep", false, "keep the local working directory")
	_ = generateCmd.MarkFlagRequired("storyboard")

	processCmd.Flags().StringSlice("uri", nil, "clip URI in playback order (repeatable)")
	processCmd.Flags().String("job-id", "", "job id used for thumbnail paths")
	processCmd.Flags().Bool("transitions", false, "crossfade between clips")
	processCmd.Flags().Bool("no-stitch", false, "keep only the first clip")
	processCmd.Flags().Bool("track", false, "also render the motion-tracked logo variant")
	processCmd.Flags().Bool("no-logo", false, "skip the corner logo")
	processCmd.Flags().Bool("no-end-card", false, "skip the end card")
	processCmd.Flags().Bool("no-upload", false, "leave outputs on disk instead of uploading")
	processCmd.Flags().Bool("keep", false, "keep the local working directory")
	_ = processCmd.MarkFlagRequired("uri")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate, stitch and brand a video from a storyboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)
		flags := cmd.Flags()

		paths, _ := flags.GetStringSlice("storyboard")
		seedURI, _ := flags.GetString("seed-uri")
		noStitch, _ := flags.GetBool("no-stitch")
		noTransitions, _ := flags.GetBool("no-transitions")
		track, _ := flags.GetBool("track")
		keep, _ := flags.GetBool("keep")

		opts := pipeline.GenerateOptions{
			Stitch:         !noStitch,
			Transitions:    !noTransitions,
			MotionTracking: track,
			KeepArtifacts:  keep,
		}

		requests := make([]pipeline.GenerateRequest, 0, len(paths))
		for _, p := range paths {
			sb, err := loadStoryboard(p)
			if err != nil {
				return err
			}
			seed := sb.SeedImage
			if seedURI != "" {
				seed = &clips.SeedImage{URI: seedURI}
			}
			requests = append(requests, pipeline.GenerateRequest{
				Scenes:     sb.Scenes,
				Parameters: sb.Parameters,
				SeedImage:  seed,
				Options:    opts,
			})
		}

		a, err := buildApp(ctx, log.Logger, cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		results := make([]*pipeline.Result, len(requests))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Concurrency)
		for i, req := range requests {
			i, req := i, req
			g.Go(func() error {
				res, err := a.pipe.Generate(gctx, req)
				results[i] = res
				if err != nil {
					log.Error().Err(err).Str("storyboard", paths[i]).Msg("generation failed")
				}
				// one failed job does not cancel the others
				return nil
			})
		}
		_ = g.Wait()

		if err := printJSON(cmd, results); err != nil {
			return err
		}
		for _, res := range results {
			if res == nil || res.Status != ledger.StatusCompleted {
				return errors.New("one or more jobs failed")
			}
		}
		return nil
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Stitch and brand clips that are already in storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)
		flags := cmd.Flags()

		uris, _ := flags.GetStringSlice("uri")
		jobID, _ := flags.GetString("job-id")

		opts := pipeline.DefaultProcessOptions()
		opts.Transitions, _ = flags.GetBool("transitions")
		opts.MotionTracking, _ = flags.GetBool("track")
		opts.KeepArtifacts, _ = flags.GetBool("keep")
		if v, _ := flags.GetBool("no-stitch"); v {
			opts.Stitch = false
		}
		if v, _ := flags.GetBool("no-logo"); v {
			opts.ApplyLogo = false
		}
		if v, _ := flags.GetBool("no-end-card"); v {
			opts.ApplyEndCard = false
		}
		if v, _ := flags.GetBool("no-upload"); v {
			opts.Upload = false
		}

		a, err := buildApp(ctx, log.Logger, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.pipe.ProcessExisting(ctx, jobID, uris, opts)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *config.FromContext(cmd.Context())
		if cfg.Storage.S3.SecretAccessKey != "" {
			cfg.Storage.S3.SecretAccessKey = "<redacted>"
		}
		if cfg.Ledger.DatabaseURL != "" {
			cfg.Ledger.DatabaseURL = "<redacted>"
		}
		out, err := yaml.Marshal(&cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the built-in defaults to a config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
