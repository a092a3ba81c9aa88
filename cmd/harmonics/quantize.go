package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-harmonics/model"
	"github.com/cwbudde/algo-harmonics/quant"
	"github.com/spf13/cobra"
)

var quantizeFlags struct {
	output  string
	half    bool
	perLine int
}

var quantizeCmd = &cobra.Command{
	Use:   "quantize <model.json>",
	Short: "Quantize a trained network for embedding",
	Long: `Converts every layer to 8-bit tensors with per-tensor min/max and
writes them as a C header (.h) or JSON (.json), chosen by the output
extension. --half writes binary16 arrays instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuantize,
}

func init() {
	f := quantizeCmd.Flags()
	f.StringVarP(&quantizeFlags.output, "output", "o", "weights.h", "Output path (.h or .json)")
	f.BoolVar(&quantizeFlags.half, "half", false, "Emit binary16 arrays (C header only)")
	f.IntVar(&quantizeFlags.perLine, "per-line", 16, "Values per line in the C header")
	rootCmd.AddCommand(quantizeCmd)
}

func runQuantize(cmd *cobra.Command, args []string) error {
	m, err := model.LoadJSON(args[0])
	if err != nil {
		return err
	}
	layers, err := m.Quantize()
	if err != nil {
		return err
	}
	for _, l := range layers {
		fmt.Printf("  %-8s %3d -> %-3d weights step %.3g, biases step %.3g\n",
			l.Name, l.In, l.Out, l.Weights.Step(), l.Biases.Step())
	}

	if err := os.MkdirAll(filepath.Dir(quantizeFlags.output), 0o755); err != nil {
		return err
	}
	f, err := os.Create(quantizeFlags.output)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	switch strings.ToLower(filepath.Ext(quantizeFlags.output)) {
	case ".json":
		if quantizeFlags.half {
			return fmt.Errorf("--half is only supported for C headers")
		}
		err = quant.WriteJSON(w, layers)
	default:
		err = quant.WriteCHeader(w, layers, quant.HeaderOptions{Half: quantizeFlags.half, PerLine: quantizeFlags.perLine})
	}
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d layers, sizes %v)\n", quantizeFlags.output, len(layers), m.Sizes())
	return nil
}
