package quant

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/cwbudde/algo-harmonics/fault"
)

// HeaderOptions controls C header generation.
type HeaderOptions struct {
	// Half emits binary16 arrays instead of 8-bit tensors.
	Half bool
	// PerLine is the number of values per line. Zero selects 16.
	PerLine int
}

// WriteCHeader writes the layers as C arrays together with layer size
// defines and the prototype of the dequantization routine.
func WriteCHeader(w io.Writer, layers []Layer, opts HeaderOptions) error {
	if len(layers) == 0 {
		return fmt.Errorf("%w: no layers to export", fault.ErrInputShape)
	}
	for _, l := range layers {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	perLine := opts.PerLine
	if perLine <= 0 {
		perLine = 16
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "#pragma once")
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "#define INPUT_SIZE %d\n", layers[0].In)
	for i, l := range layers[:len(layers)-1] {
		fmt.Fprintf(bw, "#define HIDDEN%d_SIZE %d\n", i+1, l.Out)
	}
	fmt.Fprintf(bw, "#define OUTPUT_SIZE %d\n", layers[len(layers)-1].Out)
	fmt.Fprintf(bw, "#define LAYER_COUNT %d\n", len(layers))
	fmt.Fprintln(bw)

	for i, l := range layers {
		for _, part := range []struct {
			kind string
			t    Tensor
		}{{"weights", l.Weights}, {"biases", l.Biases}} {
			id := cIdent(part.kind, i, len(layers))
			if opts.Half {
				bits, err := EncodeHalf(part.t.Decode())
				if err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				vals := make([]string, len(bits))
				for j, b := range bits {
					vals[j] = fmt.Sprintf("0x%04x", b)
				}
				writeArray(bw, "static const unsigned short", id+"_h", vals, perLine)
				continue
			}
			vals := make([]string, len(part.t.Bytes))
			for j, b := range part.t.Bytes {
				vals[j] = strconv.Itoa(int(b))
			}
			writeArray(bw, "static const unsigned char", id+"_q", vals, perLine)
			fmt.Fprintf(bw, "static const float %s_min = %s, %s_max = %s;\n\n",
				id, cFloat(part.t.Min), id, cFloat(part.t.Max))
		}
	}

	if opts.Half {
		fmt.Fprintln(bw, "float half_to_float(unsigned short bits);")
	} else {
		fmt.Fprintln(bw, "float dequantize(unsigned char value, float min_val, float max_val);")
	}
	return bw.Flush()
}

// cIdent names hidden layers weights1, weights2, ... and the last layer weights_out.
func cIdent(kind string, i, n int) string {
	if i == n-1 {
		return kind + "_out"
	}
	return kind + strconv.Itoa(i+1)
}

func writeArray(w io.Writer, ctype, name string, vals []string, perLine int) {
	fmt.Fprintf(w, "%s %s[%d] = {", ctype, name, len(vals))
	for i, v := range vals {
		if i%perLine == 0 {
			fmt.Fprint(w, "\n    ")
		} else {
			fmt.Fprint(w, " ")
		}
		fmt.Fprint(w, v)
		if i < len(vals)-1 {
			fmt.Fprint(w, ",")
		}
	}
	fmt.Fprint(w, "\n};\n")
}

func cFloat(v float64) string {
	s := strconv.FormatFloat(float64(float32(v)), 'e', 8, 32)
	return s + "f"
}

type jsonTensor struct {
	Bytes []int   `json:"bytes"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

type jsonLayer struct {
	Name    string     `json:"name"`
	In      int        `json:"in"`
	Out     int        `json:"out"`
	Weights jsonTensor `json:"weights"`
	Biases  jsonTensor `json:"biases"`
}

type jsonExport struct {
	Levels int         `json:"levels"`
	Layers []jsonLayer `json:"layers"`
}

func toJSONTensor(t Tensor) jsonTensor {
	b := make([]int, len(t.Bytes))
	for i, v := range t.Bytes {
		b[i] = int(v)
	}
	return jsonTensor{Bytes: b, Min: t.Min, Max: t.Max}
}

func fromJSONTensor(t jsonTensor) (Tensor, error) {
	out := Tensor{Bytes: make([]uint8, len(t.Bytes)), Min: t.Min, Max: t.Max}
	if t.Min > t.Max {
		return Tensor{}, fmt.Errorf("%w: min %v > max %v", fault.ErrDataIntegrity, t.Min, t.Max)
	}
	for i, v := range t.Bytes {
		if v < 0 || v > Levels {
			return Tensor{}, fmt.Errorf("%w: byte %d out of range: %d", fault.ErrDataIntegrity, i, v)
		}
		out.Bytes[i] = uint8(v)
	}
	return out, nil
}

// WriteJSON writes the layers with bytes as plain integer arrays.
func WriteJSON(w io.Writer, layers []Layer) error {
	doc := jsonExport{Levels: Levels, Layers: make([]jsonLayer, len(layers))}
	for i, l := range layers {
		doc.Layers[i] = jsonLayer{
			Name:    l.Name,
			In:      l.In,
			Out:     l.Out,
			Weights: toJSONTensor(l.Weights),
			Biases:  toJSONTensor(l.Biases),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ReadJSON reads layers written by WriteJSON.
func ReadJSON(r io.Reader) ([]Layer, error) {
	var doc jsonExport
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode quantized layers: %v", fault.ErrDataIntegrity, err)
	}
	if doc.Levels != Levels {
		return nil, fmt.Errorf("%w: unsupported level count %d", fault.ErrDataIntegrity, doc.Levels)
	}
	layers := make([]Layer, len(doc.Layers))
	for i, jl := range doc.Layers {
		w, err := fromJSONTensor(jl.Weights)
		if err != nil {
			return nil, fmt.Errorf("layer %d weights: %w", i, err)
		}
		b, err := fromJSONTensor(jl.Biases)
		if err != nil {
			return nil, fmt.Errorf("layer %d biases: %w", i, err)
		}
		layers[i] = Layer{Name: jl.Name, In: jl.In, Out: jl.Out, Weights: w, Biases: b}
		if err := layers[i].Validate(); err != nil {
			return nil, err
		}
	}
	return layers, nil
}
