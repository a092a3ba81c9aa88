package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/algo-harmonics/fault"
)

func tinyModel() *MLP {
	return &MLP{Layers: []Layer{
		{
			Weights: [][]float64{{0.5, -0.25, 0.1, -1}, {0.3, 0.2, -0.4, 0.05}, {-0.6, 0.1, 0.2, 0.3}},
			Biases:  []float64{0.1, -0.2, 0.05},
		},
		{
			Weights: [][]float64{{1.2, -0.7, 0.4}},
			Biases:  []float64{-1.5},
		},
	}}
}

func TestPredictMatchesHandComputation(t *testing.T) {
	m := tinyModel()
	in := []float64{0.5, 0.8, 0.1, 0.3}
	var hidden [3]float64
	for r, row := range m.Layers[0].Weights {
		s := m.Layers[0].Biases[r]
		for j := range row {
			s += row[j] * in[j]
		}
		hidden[r] = s / (1 + math.Exp(-s))
	}
	want := m.Layers[1].Biases[0]
	for j, w := range m.Layers[1].Weights[0] {
		want += w * hidden[j]
	}
	if got := m.Predict(in[0], in[1], in[2], in[3]); math.Abs(got-want) > 1e-12 {
		t.Fatalf("Predict = %v, want %v", got, want)
	}
}

func TestPredict32CloseToPredict(t *testing.T) {
	m := tinyModel()
	for _, in := range [][4]float64{{0.5, 0.5, 0, 0}, {0.5, 0.8, 0.1, 0.3}, {0, 0.5, 0, 0}, {1, 1, 1, 1}} {
		want := m.Predict(in[0], in[1], in[2], in[3])
		got := m.Predict32(float32(in[0]), float32(in[1]), float32(in[2]), float32(in[3]))
		if math.Abs(float64(got)-want) > 0.05 {
			t.Fatalf("Predict32(%v) = %v, Predict = %v", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := tinyModel().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad := tinyModel()
	bad.Layers[1].Weights[0] = bad.Layers[1].Weights[0][:2]
	if err := bad.Validate(); !errors.Is(err, fault.ErrInputShape) {
		t.Fatalf("chain mismatch error = %v", err)
	}
	nan := tinyModel()
	nan.Layers[0].Biases[0] = math.NaN()
	if err := nan.Validate(); !errors.Is(err, fault.ErrDataIntegrity) {
		t.Fatalf("NaN bias error = %v", err)
	}
	if err := (&MLP{}).Validate(); !errors.Is(err, fault.ErrInputShape) {
		t.Fatalf("empty model error = %v", err)
	}
}

func TestSaveLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	m := tinyModel()
	if err := m.SaveJSON(path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	got, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if got.Predict(0.1, 0.2, 0.3, 0.4) != m.Predict(0.1, 0.2, 0.3, 0.4) {
		t.Fatalf("loaded model predicts differently")
	}
	if err := os.WriteFile(path, []byte(`{"layers": [`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadJSON(path); !errors.Is(err, fault.ErrDataIntegrity) {
		t.Fatalf("corrupt model error = %v", err)
	}
}

func TestDecodeRejectsWrongInputWidth(t *testing.T) {
	doc := `{"layers":[{"weights":[[1,2,3]],"biases":[0]}]}`
	if _, err := Decode(strings.NewReader(doc)); !errors.Is(err, fault.ErrInputShape) {
		t.Fatalf("error = %v, want ErrInputShape", err)
	}
}

func TestQuantizedModelStaysClose(t *testing.T) {
	m := tinyModel()
	layers, err := m.Quantize()
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if len(layers) != 2 || layers[1].Name != "out" {
		t.Fatalf("unexpected layers %+v", layers)
	}
	q, err := FromQuantized(layers)
	if err != nil {
		t.Fatalf("FromQuantized: %v", err)
	}
	for _, in := range [][4]float64{{0.5, 0.5, 0, 0}, {0.2, 0.9, 0.7, 1.5}} {
		a := m.Predict(in[0], in[1], in[2], in[3])
		b := q.Predict(in[0], in[1], in[2], in[3])
		if math.Abs(a-b) > 0.05 {
			t.Fatalf("quantized prediction %v drifted from %v", b, a)
		}
	}
}

func TestFloat32QuantizedPath(t *testing.T) {
	m := tinyModel()
	layers, err := m.Quantize()
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	q64, err := FromQuantized(layers)
	if err != nil {
		t.Fatalf("FromQuantized: %v", err)
	}
	q32, err := FromQuantized32(layers)
	if err != nil {
		t.Fatalf("FromQuantized32: %v", err)
	}
	for i, l := range q32.Layers {
		for r, row := range l.Weights {
			for j, w := range row {
				if math.Abs(w-q64.Layers[i].Weights[r][j]) > 1e-6 {
					t.Fatalf("layer %d weight [%d][%d]: %v vs %v", i, r, j, w, q64.Layers[i].Weights[r][j])
				}
			}
		}
	}
	p := Float32{q32}
	for _, in := range [][4]float64{{0.5, 0.5, 0, 0}, {0.2, 0.9, 0.7, 1.5}} {
		want := q64.Predict(in[0], in[1], in[2], in[3])
		if got := p.Predict(in[0], in[1], in[2], in[3]); math.Abs(got-want) > 0.05 {
			t.Fatalf("float32 prediction %v, float64 %v", got, want)
		}
	}
}
