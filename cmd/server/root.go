package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/estatepost/internal/config"
	"github.com/ashureev/estatepost/internal/facebook"
	"github.com/ashureev/estatepost/internal/genai"
	"github.com/ashureev/estatepost/internal/media"
	"github.com/ashureev/estatepost/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "estatepost",
	Short: "estatepost turns a property idea into a published Facebook post",
	Long: `estatepost runs the branding, visuals, image and copywriting pipeline for a
property listing and publishes the result to a Facebook Page. By default it
serves the live WebSocket endpoint and the Facebook connection API.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a .env file to load")
	rootCmd.RunE = serveCmd.RunE
}

// setup loads the environment and configuration and installs the logger.
func setup(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	envErr := godotenv.Load(envFile)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if envErr != nil {
		slog.Info("No .env file found, using environment variables", "path", envFile)
	}
	return cfg, nil
}

// newPipeline builds the compiled graph and its collaborators. Failure to
// build the text client or the graph is fatal.
func newPipeline(cfg *config.Config, observer workflow.Observer) (*workflow.Engine, *media.FileStore, error) {
	prompts := workflow.DefaultPrompts()
	if cfg.PromptsFile != "" {
		p, err := workflow.LoadPrompts(cfg.PromptsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load prompts: %w", err)
		}
		prompts = p
	}

	text, err := genai.NewTextClient(cfg.LLM.APIKey,
		genai.WithBaseURL(cfg.LLM.BaseURL),
		genai.WithModel(cfg.LLM.Model),
		genai.WithTemperature(cfg.LLM.Temperature),
		genai.WithTimeout(cfg.LLM.Timeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize language model client: %w", err)
	}

	images := genai.NewImageClient(cfg.Image.APIKey,
		genai.WithBaseURL(cfg.Image.BaseURL),
		genai.WithModel(cfg.Image.Model),
	)

	store, err := media.NewFileStore(cfg.Image.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize image store: %w", err)
	}

	graphClient := facebook.NewClient(cfg.Facebook.AppID, cfg.Facebook.AppSecret, cfg.Facebook.RedirectURI)
	if cfg.Facebook.PageID == "" || cfg.Facebook.PageToken == "" {
		slog.Warn("FB_PAGE_ID or FB_PAGE_ACCESS_TOKEN not set, publishing will report an error")
	}

	g, err := workflow.New(workflow.Dependencies{
		Text:      text,
		Images:    images,
		Store:     store,
		Publisher: facebook.NewPhotoPublisher(graphClient, cfg.Facebook.PageID, cfg.Facebook.PageToken),
		Prompts:   prompts,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("compile workflow graph: %w", err)
	}

	var opts []workflow.EngineOption
	if observer != nil {
		opts = append(opts, workflow.WithObserver(observer))
	}
	return workflow.NewEngine(g, opts...), store, nil
}
