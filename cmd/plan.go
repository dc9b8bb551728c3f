package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipway-sh/slipway/pkg/manifest"
	"github.com/slipway-sh/slipway/pkg/plan"
)

type planOptions struct {
	sources []string
	output  string
}

func newPlanCmd() *cobra.Command {
	opts := &planOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the staged dependency plan without touching the cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.sources, "sources", "s", nil, "Manifest files, directories, or CUE packages (required)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")
	_ = cmd.MarkFlagRequired("sources")

	return cmd
}

func runPlan(cmd *cobra.Command, opts *planOptions) error {
	set, err := manifest.Load(opts.sources...)
	if err != nil {
		return err
	}
	p, err := plan.Build(set)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch opts.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "text":
		for i, stage := range p.Stages {
			fmt.Fprintf(w, "Stage %d:\n", i)
			for _, key := range stage {
				node := p.Nodes[key]
				fmt.Fprintf(w, "  %s", key)
				if len(node.DependsOn) > 0 {
					fmt.Fprintf(w, "  (after:")
					for _, dep := range node.DependsOn {
						fmt.Fprintf(w, " %s", dep)
					}
					fmt.Fprintf(w, ")")
				}
				fmt.Fprintln(w)
			}
		}
		return nil
	default:
		return fmt.Errorf("invalid --output value %q (want text or json)", opts.output)
	}
}
