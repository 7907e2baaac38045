package tools

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/xiaot623/taskagent/internal/domain"
)

// decodeArgs maps model-supplied arguments onto a typed input struct.
// Numbers may arrive as JSON floats or numeric strings; unknown keys are rejected.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       rejectFractionalInts,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// rejectFractionalInts stops weak decoding from truncating 1.9 into 1.
func rejectFractionalInts(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Float64 && from.Kind() != reflect.Float32 {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	v := reflect.ValueOf(data).Float()
	if v != math.Trunc(v) {
		return nil, fmt.Errorf("expected an integer, got %v", v)
	}
	return data, nil
}

func validateDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(domain.DateLayout, value); err != nil {
		return fmt.Errorf("%s must be in YYYY-MM-DD format", field)
	}
	return nil
}

func validateStatus(field string, s domain.TaskStatus) error {
	if !s.Valid() {
		return fmt.Errorf("%s must be one of todo, in progress, done", field)
	}
	return nil
}

func statusEnum() []string {
	out := make([]string, 0, len(domain.AllTaskStatuses))
	for _, s := range domain.AllTaskStatuses {
		out = append(out, string(s))
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
