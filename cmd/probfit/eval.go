package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/probfit/probfit/dataset"
	"github.com/probfit/probfit/fitconfig"
	"github.com/probfit/probfit/gof"
	"github.com/probfit/probfit/logging"
)

func newEvalCmd() *cobra.Command {
	var workersFlag int

	cmd := &cobra.Command{
		Use:   "eval <job.yaml>",
		Short: "Evaluate the goodness-of-fit statistic of a fit job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			logger := logging.NewLogger(level, os.Stderr)

			cfg, err := fitconfig.Load(args[0])
			if err != nil {
				return err
			}
			if workersFlag > 0 {
				cfg.Workers = workersFlag
			}

			var labelCols []string
			if cfg.Category != "" {
				labelCols = append(labelCols, cfg.Category)
			}
			data, err := dataset.ReadCSVFile(cfg.Data, labelCols...)
			if err != nil {
				return err
			}
			logger.Info("dataset loaded", "path", cfg.Data, "entries", data.NumEntries())

			m, params, err := cfg.BuildModel()
			if err != nil {
				return err
			}

			engineCfg := gof.Config{
				Name:    cfg.Name,
				Workers: cfg.Workers,
				Logger:  logger,
			}
			var engine *gof.Engine
			switch cfg.Statistic {
			case "chi2":
				engine, err = gof.NewChi2Engine(m, data, cfg.WeightColumn, cfg.BinVolume, engineCfg)
			default:
				engine, err = gof.NewEngine(gof.NLLFactory{Extended: cfg.Extended}, m, data, engineCfg)
			}
			if err != nil {
				return err
			}
			defer engine.Close()

			value, err := engine.Evaluate()
			if err != nil {
				return err
			}
			fmt.Printf("%s = %.6f  (mode=%s, workers=%d, entries=%d)\n",
				cfg.Statistic, value, engine.Mode(), cfg.Workers, data.NumEntries())

			if cfg.Scan != nil {
				p := params.Find(cfg.Scan.Parameter)
				if p == nil {
					return fmt.Errorf("scan parameter %q not found in model", cfg.Scan.Parameter)
				}
				points, err := gof.Scan(engine, p, cfg.Scan.Lo, cfg.Scan.Hi, cfg.Scan.Steps)
				if err != nil {
					return err
				}
				best, err := gof.Minimum(points)
				if err != nil {
					return err
				}
				for _, pt := range points {
					fmt.Printf("scan %s=%.6f  %s=%.6f\n", p.Name, pt.Value, cfg.Statistic, pt.Statistic)
				}
				fmt.Printf("minimum at %s=%.6f (%s=%.6f)\n", p.Name, best.Value, cfg.Statistic, best.Statistic)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workersFlag, "workers", 0, "Override the worker count of the job")
	return cmd
}
