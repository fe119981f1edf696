package config

import (
	"encoding/json"
	"fmt"
	"math"
)

const autoValue = "auto"

// HiddenLayerSizes is either "auto" (nil) or explicit layer widths. A bare
// integer is a single hidden layer and an empty list means no hidden layer.
type HiddenLayerSizes []int

// IsAuto reports whether the sizes are derived from the training set.
func (h HiddenLayerSizes) IsAuto() bool {
	return h == nil
}

func (h *HiddenLayerSizes) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return h.set(v)
}

func (h *HiddenLayerSizes) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	return h.set(v)
}

func (h *HiddenLayerSizes) set(v interface{}) error {
	switch t := v.(type) {
	case nil:
		*h = nil
	case string:
		if t != autoValue {
			return fmt.Errorf("hidden_layer_sizes: expected %q or integers, got %q", autoValue, t)
		}
		*h = nil
	case []interface{}:
		sizes := make(HiddenLayerSizes, 0, len(t))
		for _, item := range t {
			n, err := toInt(item)
			if err != nil {
				return fmt.Errorf("hidden_layer_sizes: %w", err)
			}
			sizes = append(sizes, n)
		}
		*h = sizes
	default:
		n, err := toInt(t)
		if err != nil {
			return fmt.Errorf("hidden_layer_sizes: %w", err)
		}
		*h = HiddenLayerSizes{n}
	}
	return nil
}

// BatchSize is the minibatch size; zero means "auto".
type BatchSize int

func (b *BatchSize) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return b.set(v)
}

func (b *BatchSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	return b.set(v)
}

func (b *BatchSize) set(v interface{}) error {
	if s, ok := v.(string); ok {
		if s != autoValue {
			return fmt.Errorf("batch_size: expected %q or an integer, got %q", autoValue, s)
		}
		*b = 0
		return nil
	}
	if v == nil {
		*b = 0
		return nil
	}
	n, err := toInt(v)
	if err != nil {
		return fmt.Errorf("batch_size: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("batch_size: must be positive, got %d", n)
	}
	*b = BatchSize(n)
	return nil
}

func toInt(v interface{}) (int, error) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected an integer, got %v", v)
	}
	return int(f), nil
}
