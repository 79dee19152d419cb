package series

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

var requiredMeta = []string{"sourceRepo", "oldPath", "newPath", "generatedAt"}

var countFields = []string{"oldSizeKB", "newSizeKB", "oldFiles", "newFiles"}

var optionalCountFields = []string{"oldLines", "newLines"}

// Validate checks a series before it is written. It is the last gate before
// data reaches disk: an invalid series is never persisted.
func Validate(s Series) error {
	if s.Data == nil {
		s.Data = []DataPoint{}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityCritical, "series cannot be encoded")
	}
	return ValidateDocument(raw)
}

// ValidateDocument checks a raw series document. The first violation found
// is returned as a validation error naming the offending field and index;
// remaining structural problems are reported by the JSON schema.
func ValidateDocument(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityCritical, "series is not valid JSON")
	}

	root, ok := doc.(map[string]any)
	if !ok {
		return invalid("(root)", "series must be a JSON object")
	}

	if err := checkMeta(root); err != nil {
		return err
	}
	if err := checkData(root); err != nil {
		return err
	}
	return checkSchema(doc)
}

func checkMeta(root map[string]any) error {
	raw, present := root["meta"]
	if !present || raw == nil {
		return invalid("meta", "meta is missing")
	}
	meta, ok := raw.(map[string]any)
	if !ok {
		return invalid("meta", "meta must be an object")
	}

	for _, field := range requiredMeta {
		name := "meta." + field
		v, present := meta[field]
		if !present || v == nil {
			return invalid(name, name+" is missing")
		}
		if _, ok := v.(string); !ok {
			return invalid(name, name+" must be a string")
		}
	}
	return nil
}

func checkData(root map[string]any) error {
	points, ok := root["data"].([]any)
	if !ok {
		return invalid("data", "data must be an array")
	}

	times := make([]int64, len(points))
	for i, raw := range points {
		point, ok := raw.(map[string]any)
		if !ok {
			return invalid(fmt.Sprintf("data[%d]", i), fmt.Sprintf("data[%d] must be an object", i))
		}

		t, ok := positiveInt(point["time"])
		if !ok {
			name := fmt.Sprintf("data[%d].time", i)
			return invalid(name, name+" must be a positive integer")
		}
		times[i] = t

		for _, field := range countFields {
			if !nonNegative(point[field], false) {
				name := fmt.Sprintf("data[%d].%s", i, field)
				return invalid(name, name+" must be >= 0")
			}
		}
		for _, field := range optionalCountFields {
			if !nonNegative(point[field], true) {
				name := fmt.Sprintf("data[%d].%s", i, field)
				return invalid(name, name+" must be >= 0")
			}
		}
	}

	for i := 1; i < len(times); i++ {
		name := fmt.Sprintf("data[%d].time", i)
		switch {
		case times[i] == times[i-1]:
			return invalid(name, fmt.Sprintf("duplicate timestamp %d at data[%d] and data[%d]", times[i], i-1, i))
		case times[i] < times[i-1]:
			return invalid(name, fmt.Sprintf(
				"data must be sorted by time in strictly increasing order: data[%d].time=%d follows %d", i, times[i], times[i-1]))
		}
	}

	return nil
}

func checkSchema(doc any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityCritical, "series schema could not be applied")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	sort.Strings(msgs)

	return errors.ValidationErrorf("series does not match schema: %s", strings.Join(msgs, "; ")).
		WithContext("violations", len(msgs))
}

func positiveInt(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil || i <= 0 {
		return 0, false
	}
	return i, true
}

func nonNegative(v any, optional bool) bool {
	if v == nil {
		return optional
	}
	n, ok := v.(json.Number)
	if !ok {
		return false
	}
	f, err := n.Float64()
	return err == nil && f >= 0
}

func invalid(field, msg string) error {
	return errors.ValidationErrorf("validation error: %s", msg).WithContext("field", field)
}
