package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ashureev/estatepost/internal/identity"
	"github.com/ashureev/estatepost/internal/workflow"
)

// runCmd drives one pipeline run from the terminal.
var runCmd = &cobra.Command{
	Use:   "run [idea]",
	Short: "Run the pipeline once and print progress events as JSON lines",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idea, _ := cmd.Flags().GetString("idea")
		if idea == "" && len(args) > 0 {
			idea = args[0]
		}
		if strings.TrimSpace(idea) == "" {
			return fmt.Errorf("an idea is required (argument or --idea)")
		}

		cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		engine, _, err := newPipeline(cfg, nil)
		if err != nil {
			return err
		}

		clientID, _ := cmd.Flags().GetString("client-id")
		if clientID == "" {
			clientID = identity.NewClientID()
		}

		state := workflow.NewState(clientID).Reseed(idea)
		state.MergeDetails(detailsFromFlags(cmd))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		enc := json.NewEncoder(cmd.OutOrStdout())
		sink := workflow.SinkFunc(func(_ context.Context, ev workflow.Event) error {
			return enc.Encode(ev)
		})

		res, err := engine.Run(ctx, state, sink, "")
		if err != nil {
			return err
		}
		if res.Status == workflow.StatusPaused {
			if err := sink.Emit(ctx, workflow.RequestInputEvent(res.Missing)); err != nil {
				return err
			}
			return fmt.Errorf("missing property details: %s", strings.Join(res.Missing, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("idea", "", "Property idea to brand and post")
	runCmd.Flags().String("client-id", "", "Client id used for the generated image name")
	runCmd.Flags().String("location", "", "Property location")
	runCmd.Flags().String("price", "", "Asking price")
	runCmd.Flags().String("bedrooms", "", "Number of bedrooms")
	runCmd.Flags().StringSlice("features", nil, "Property features (comma-separated)")
}

func detailsFromFlags(cmd *cobra.Command) workflow.Details {
	var d workflow.Details
	for name, dst := range map[string]**string{
		"location": &d.Location,
		"price":    &d.Price,
		"bedrooms": &d.Bedrooms,
	} {
		if v, _ := cmd.Flags().GetString(name); strings.TrimSpace(v) != "" {
			v = strings.TrimSpace(v)
			*dst = &v
		}
	}
	d.Features, _ = cmd.Flags().GetStringSlice("features")
	return d
}
