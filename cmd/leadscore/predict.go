package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rushteam/leadscore"
	"github.com/rushteam/leadscore/core"
)

type predictFlags struct {
	sample bool
	sets   []string
	input  string
	pdf    string
	json   bool
}

func (a *app) predictCmd() *cobra.Command {
	f := &predictFlags{}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict a single lead from flags or a JSON file",
		Example: `  leadscore predict --sample
  leadscore predict --sample --set "Total Time Spent on Website=10"
  leadscore predict --input lead.json --pdf lead_report.pdf`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := buildInput(f.sample, f.input, f.sets)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			engine, err := a.engine(ctx)
			if err != nil {
				return err
			}
			lctx, err := engine.Run(ctx, raw)
			if err != nil {
				return err
			}
			rep := reportOf(engine, lctx)

			if hist, err := a.openHistory(ctx); err != nil {
				log.WithError(err).Warn("open history failed")
			} else if hist != nil {
				if err := hist.Record(ctx, rep, *lctx.Prediction); err != nil {
					log.WithError(err).Warn("record history failed")
				}
				_ = hist.Close()
			}

			if f.pdf != "" {
				if err := writePDFFile(engine, f.pdf, rep); err != nil {
					return err
				}
				log.WithField("path", f.pdf).Info("report written")
			}

			out := cmd.OutOrStdout()
			if f.json {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(newPredictOutput(engine, lctx, rep))
			}
			return writePrediction(out, lctx, !color.NoColor)
		},
	}
	cmd.Flags().BoolVar(&f.sample, "sample", false, "start from the sample lead")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, `set a field, e.g. --set "City=Mumbai" (repeatable)`)
	cmd.Flags().StringVar(&f.input, "input", "", "JSON file with field values")
	cmd.Flags().StringVar(&f.pdf, "pdf", "", "write the PDF report to this path")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the result as JSON")
	cmd.Flags().Int("top-n", 0, "number of influential features to show (default 5)")
	_ = a.v.BindPFlag("explain.top_n", cmd.Flags().Lookup("top-n"))
	return cmd
}

// buildInput 依次合并示例、JSON 文件与 --set 取值，后者覆盖前者
func buildInput(sample bool, input string, sets []string) (map[string]any, error) {
	raw := map[string]any{}
	if sample {
		raw = leadscore.Sample()
	}
	if input != "" {
		data, err := os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("read input %s: %w", input, err)
		}
		var fromFile map[string]any
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("parse input %s: %w", input, err)
		}
		for k, v := range fromFile {
			raw[k] = v
		}
	}
	for _, s := range sets {
		k, v, err := parseSet(s)
		if err != nil {
			return nil, err
		}
		raw[k] = v
	}
	return raw, nil
}

// parseSet 解析 "name=value"，只按第一个等号切分
func parseSet(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", fmt.Errorf("invalid --set %q, expected name=value", s)
	}
	return k, v, nil
}

func writePDFFile(engine *leadscore.Engine, path string, rep core.Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return engine.RenderPDF(f, rep)
}
