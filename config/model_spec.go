package config

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ModelType selects the estimator a model entry trains.
type ModelType string

const (
	ModelTypeRegression ModelType = "regression"
	ModelTypeNeuralNet  ModelType = "neural_net"
)

// ModelSpec is the "model" object of a model entry. Named fields cover the
// polynomial degree and the MLP hyperparameters; every other key is kept in
// Tuning and validated against the estimator-specific keys it supports.
type ModelSpec struct {
	Type    ModelType `json:"type" yaml:"type"`
	Comment string    `json:"_comment,omitempty" yaml:"_comment,omitempty"`

	PolynomialDegree int `json:"polynomial_degree,omitempty" yaml:"polynomial_degree,omitempty"`

	HiddenLayerSizes HiddenLayerSizes `json:"hidden_layer_sizes,omitempty" yaml:"hidden_layer_sizes,omitempty"`
	Activation       string           `json:"activation,omitempty" yaml:"activation,omitempty"`
	Solver           string           `json:"solver,omitempty" yaml:"solver,omitempty"`
	Alpha            *float64         `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	BatchSize        BatchSize        `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	LearningRate     string           `json:"learning_rate,omitempty" yaml:"learning_rate,omitempty"`
	LearningRateInit float64          `json:"learning_rate_init,omitempty" yaml:"learning_rate_init,omitempty"`
	MaxIter          int              `json:"max_iter,omitempty" yaml:"max_iter,omitempty"`
	Tol              *float64         `json:"tol,omitempty" yaml:"tol,omitempty"`
	NIterNoChange    int              `json:"n_iter_no_change,omitempty" yaml:"n_iter_no_change,omitempty"`
	Shuffle          *bool            `json:"shuffle,omitempty" yaml:"shuffle,omitempty"`
	RandomState      *int64           `json:"random_state,omitempty" yaml:"random_state,omitempty"`

	Tuning map[string]interface{} `json:"tuning,omitempty" yaml:"tuning,omitempty"`
}

var specKeys = map[string]bool{
	"type":               true,
	"_comment":           true,
	"polynomial_degree":  true,
	"hidden_layer_sizes": true,
	"activation":         true,
	"solver":             true,
	"alpha":              true,
	"batch_size":         true,
	"learning_rate":      true,
	"learning_rate_init": true,
	"max_iter":           true,
	"tol":                true,
	"n_iter_no_change":   true,
	"shuffle":            true,
	"random_state":       true,
	"tuning":             true,
}

type tuningKind int

const (
	tuningFloat tuningKind = iota
	tuningInt
	tuningBool
)

// tuningKeys are the estimator-specific keys accepted through Tuning.
var tuningKeys = map[string]tuningKind{
	"beta_1":             tuningFloat,
	"beta_2":             tuningFloat,
	"epsilon":            tuningFloat,
	"momentum":           tuningFloat,
	"nesterovs_momentum": tuningBool,
	"power_t":            tuningFloat,
	"max_fun":            tuningInt,
}

var (
	activations   = []string{"identity", "logistic", "tanh", "relu"}
	solvers       = []string{"lbfgs", "sgd", "adam"}
	learningRates = []string{"constant", "invscaling", "adaptive"}
)

type plainSpec ModelSpec

func (s *ModelSpec) UnmarshalJSON(data []byte) error {
	var plain plainSpec
	if err := json.Unmarshal(data, &plain); err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ModelSpec(plain)
	s.collectTuning(raw)
	return nil
}

func (s *ModelSpec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var plain plainSpec
	if err := unmarshal(&plain); err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*s = ModelSpec(plain)
	s.collectTuning(raw)
	return nil
}

// collectTuning moves keys without a named field into Tuning.
func (s *ModelSpec) collectTuning(raw map[string]interface{}) {
	for key, value := range raw {
		if specKeys[key] {
			continue
		}
		if s.Tuning == nil {
			s.Tuning = make(map[string]interface{})
		}
		s.Tuning[key] = value
	}
}

// Validate checks the fields the selected model type depends on.
func (s ModelSpec) Validate() error {
	switch s.Type {
	case ModelTypeRegression:
		if s.PolynomialDegree < 1 {
			return fmt.Errorf("polynomial_degree must be at least 1, got %d", s.PolynomialDegree)
		}
		return nil
	case ModelTypeNeuralNet:
		return s.validateNeuralNet()
	case "":
		return fmt.Errorf("model type is required")
	default:
		return fmt.Errorf("unknown model type %q", s.Type)
	}
}

func (s ModelSpec) validateNeuralNet() error {
	for _, size := range s.HiddenLayerSizes {
		if size <= 0 {
			return fmt.Errorf("hidden_layer_sizes must be positive, got %v", []int(s.HiddenLayerSizes))
		}
	}
	if err := oneOf("activation", s.Activation, activations); err != nil {
		return err
	}
	if err := oneOf("solver", s.Solver, solvers); err != nil {
		return err
	}
	if err := oneOf("learning_rate", s.LearningRate, learningRates); err != nil {
		return err
	}
	if s.Alpha != nil && *s.Alpha < 0 {
		return fmt.Errorf("alpha must be non-negative, got %g", *s.Alpha)
	}
	if s.Tol != nil && *s.Tol < 0 {
		return fmt.Errorf("tol must be non-negative, got %g", *s.Tol)
	}
	if s.BatchSize < 0 {
		return fmt.Errorf("batch_size must be positive, got %d", s.BatchSize)
	}
	if s.LearningRateInit < 0 || s.MaxIter < 0 || s.NIterNoChange < 0 {
		return fmt.Errorf("learning_rate_init, max_iter and n_iter_no_change must be positive")
	}

	keys := make([]string, 0, len(s.Tuning))
	for key := range s.Tuning {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		kind, ok := tuningKeys[key]
		if !ok {
			return fmt.Errorf("unsupported neural_net parameter %q", key)
		}
		if err := checkTuningValue(key, kind, s.Tuning[key]); err != nil {
			return err
		}
	}
	return nil
}

func oneOf(name, value string, allowed []string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), value)
}

func checkTuningValue(key string, kind tuningKind, value interface{}) error {
	switch kind {
	case tuningBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s must be a boolean, got %v", key, value)
		}
	case tuningInt:
		f, ok := toFloat(value)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("%s must be an integer, got %v", key, value)
		}
	default:
		if _, ok := toFloat(value); !ok {
			return fmt.Errorf("%s must be a number, got %v", key, value)
		}
	}
	return nil
}

// TuningFloat returns a numeric tuning value or def when it is unset.
func (s ModelSpec) TuningFloat(key string, def float64) float64 {
	if f, ok := toFloat(s.Tuning[key]); ok {
		return f
	}
	return def
}

// TuningBool returns a boolean tuning value or def when it is unset.
func (s ModelSpec) TuningBool(key string, def bool) bool {
	if b, ok := s.Tuning[key].(bool); ok {
		return b
	}
	return def
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
