package privacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"sync"
)

// ErrNonFinite is returned by ValidateFinite when a tensor contains NaN or Inf.
var ErrNonFinite = errors.New("non-finite value in update")

// Config controls clipping and noise injection.
type Config struct {
	MaxNorm     float64
	NoiseScale  float64
	EnableNoise bool
}

// DefaultConfig mirrors the original coordinator's environment defaults.
func DefaultConfig() Config {
	return Config{MaxNorm: 10.0, NoiseScale: 0.01, EnableNoise: false}
}

// Applied records which protections were applied, for inclusion in a
// protected update's metadata.
type Applied struct {
	Clipping   bool     `json:"clipping"`
	Noise      bool     `json:"noise"`
	MaxNorm    *float64 `json:"max_norm,omitempty"`
	NoiseScale *float64 `json:"noise_scale,omitempty"`
}

// Filter applies privacy safeguards to weight deltas.
type Filter struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Filter. src seeds the noise generator; pass a
// time-derived source in production and a fixed one in tests.
func New(cfg Config, src rand.Source) *Filter {
	return &Filter{cfg: cfg, rng: rand.New(src)}
}

// ValidateFinite reports whether every value in delta is finite.
func ValidateFinite(delta [][]float64) error {
	for i, tensor := range delta {
		for j, v := range tensor {
			if !isFinite(v) {
				return fmt.Errorf("%w: parameter %d, element %d: %v", ErrNonFinite, i, j, v)
			}
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clip scales down each parameter tensor whose L2 norm exceeds MaxNorm. A
// non-positive MaxNorm disables clipping.
func (f *Filter) Clip(delta [][]float64) [][]float64 {
	if f.cfg.MaxNorm <= 0 {
		return delta
	}

	clipped := make([][]float64, len(delta))
	for i, tensor := range delta {
		var sumSq float64
		for _, v := range tensor {
			sumSq += v * v
		}
		norm := math.Sqrt(sumSq)

		out := make([]float64, len(tensor))
		if norm > f.cfg.MaxNorm {
			scale := f.cfg.MaxNorm / norm
			for j, v := range tensor {
				out[j] = v * scale
			}
		} else {
			copy(out, tensor)
		}
		clipped[i] = out
	}
	return clipped
}

// AddNoise adds zero-mean Gaussian noise with standard deviation NoiseScale
// to every value, if noise injection is enabled.
func (f *Filter) AddNoise(delta [][]float64) [][]float64 {
	if !f.cfg.EnableNoise || f.cfg.NoiseScale <= 0 {
		return delta
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	noisy := make([][]float64, len(delta))
	for i, tensor := range delta {
		out := make([]float64, len(tensor))
		for j, v := range tensor {
			out[j] = v + f.rng.NormFloat64()*f.cfg.NoiseScale
		}
		noisy[i] = out
	}
	return noisy
}

// Protect runs clipping followed by noise injection and reports what was
// applied, for the caller to attach as metadata.
func (f *Filter) Protect(delta [][]float64) ([][]float64, Applied) {
	protected := f.AddNoise(f.Clip(delta))

	applied := Applied{
		Clipping: f.cfg.MaxNorm > 0,
		Noise:    f.cfg.EnableNoise,
	}
	if f.cfg.MaxNorm > 0 {
		maxNorm := f.cfg.MaxNorm
		applied.MaxNorm = &maxNorm
	}
	if f.cfg.EnableNoise {
		scale := f.cfg.NoiseScale
		applied.NoiseScale = &scale
	}
	return protected, applied
}

// bareSpecialFloat matches the unquoted NaN/Infinity/-Infinity tokens that
// workers may emit in a weight_delta payload. Go's encoding/json, unlike
// Python's, rejects these as malformed numbers, so ParseDocument quotes
// them before decoding and floatFromAny unquotes them back on the way out.
var bareSpecialFloat = regexp.MustCompile(`-Infinity|Infinity|NaN`)

// ParseDocument decodes a delta document, tolerating the non-finite float
// literals Python's json module accepts. ok is false if raw is not a JSON
// object.
func ParseDocument(raw string) (map[string]any, bool) {
	quoted := bareSpecialFloat.ReplaceAllStringFunc(raw, func(m string) string {
		return `"` + m + `"`
	})
	var doc map[string]any
	if err := json.Unmarshal([]byte(quoted), &doc); err != nil {
		return nil, false
	}
	return doc, true
}

func floatFromAny(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		switch t {
		case "NaN":
			return math.NaN(), true
		case "Infinity":
			return math.Inf(1), true
		case "-Infinity":
			return math.Inf(-1), true
		}
	}
	return 0, false
}

// ExtractTensors pulls the weight_delta field out of doc as a nested float
// slice. ok is false if the field is missing or not a well-formed tensor
// list.
func ExtractTensors(doc map[string]any) ([][]float64, bool) {
	raw, ok := doc["weight_delta"]
	if !ok {
		return nil, false
	}
	outer, ok := raw.([]any)
	if !ok || len(outer) == 0 {
		return nil, false
	}

	tensors := make([][]float64, 0, len(outer))
	for _, tensorRaw := range outer {
		inner, ok := tensorRaw.([]any)
		if !ok {
			return nil, false
		}
		tensor := make([]float64, 0, len(inner))
		for _, v := range inner {
			f, ok := floatFromAny(v)
			if !ok {
				return nil, false
			}
			tensor = append(tensor, f)
		}
		tensors = append(tensors, tensor)
	}
	return tensors, true
}

func tensorsToAny(tensors [][]float64) []any {
	out := make([]any, len(tensors))
	for i, tensor := range tensors {
		row := make([]any, len(tensor))
		for j, v := range tensor {
			row[j] = v
		}
		out[i] = row
	}
	return out
}

// ProtectDocument applies Protect to raw's weight_delta field and
// re-serializes the whole document with privacy_applied metadata attached,
// preserving every other field verbatim. If raw cannot be parsed as an
// object carrying a well-formed weight_delta, it is returned unchanged —
// admission has already validated shape, so this path is best-effort only.
func (f *Filter) ProtectDocument(raw string) string {
	doc, ok := ParseDocument(raw)
	if !ok {
		return raw
	}
	tensors, ok := ExtractTensors(doc)
	if !ok {
		return raw
	}

	protected, applied := f.Protect(tensors)
	doc["weight_delta"] = tensorsToAny(protected)
	doc["privacy_applied"] = applied

	out, err := json.Marshal(doc)
	if err != nil {
		return raw
	}
	return string(out)
}
