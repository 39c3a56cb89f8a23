package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stresscam/internal/analysis"
	"stresscam/internal/classifier"
	"stresscam/internal/emotion"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Analyze a single image file (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			data, err := readImageArg(cmd, args[0])
			if err != nil {
				return err
			}

			client, err := classifier.New(cfg.ClassifierConfig(), logger)
			if err != nil {
				return fmt.Errorf("create classifier: %w", err)
			}
			if closer, ok := client.(io.Closer); ok {
				defer closer.Close()
			}

			timeout := time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second
			analyzer := analysis.NewAnalyzer(client, timeout, logger)
			resp, err := analyzer.Analyze(cmd.Context(), analysis.Request{
				ImageBase64: base64.StdEncoding.EncodeToString(data),
			})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAnalysis(resp))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")
	return cmd
}

func readImageArg(cmd *cobra.Command, arg string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), analysis.MaxImageBytes+1))
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > analysis.MaxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", analysis.ErrInvalidImage, analysis.MaxImageBytes)
	}
	return data, nil
}

func renderAnalysis(resp *analysis.Response) string {
	rows := [][]string{
		{"Face detected", fmt.Sprintf("%t", resp.FaceDetected)},
		{"Dominant emotion", string(resp.DominantEmotion)},
		{"Confidence", fmt.Sprintf("%.2f", resp.Confidence)},
		{"Valence", fmt.Sprintf("%.2f", resp.Valence)},
		{"Arousal", fmt.Sprintf("%.2f", resp.Arousal)},
		{"Stress level", fmt.Sprintf("%.1f", resp.StressLevel)},
	}
	for _, label := range emotion.Labels {
		rows = append(rows, []string{string(label), fmt.Sprintf("%.1f", resp.Emotions.Get(label))})
	}
	return renderKeyValues(rows) + "\n" + resp.Reasoning
}
