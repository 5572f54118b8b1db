package tools

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

var stakeholderType = reflect.TypeOf(StakeholderInput{})

// stakeholderFromString lets the model pass plain names where stakeholder
// objects are expected.
func stakeholderFromString(from, to reflect.Type, data any) (any, error) {
	if to == stakeholderType && from.Kind() == reflect.String {
		return map[string]any{"name": data}, nil
	}
	return data, nil
}

// decodeInto copies raw model arguments into out. Numbers, bools and single
// values are coerced to the target field types; unknown keys are ignored.
func decodeInto(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Squash:           true,
		WeaklyTypedInput: true,
		DecodeHook:       stakeholderFromString,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// checkInput decodes raw into a fresh input of def and validates it. It
// returns the decoded input and every problem found, each prefixed with the
// tool name.
func checkInput(def Definition, raw map[string]any) (Input, []string) {
	in := def.NewInput()
	if raw == nil {
		raw = map[string]any{}
	}
	if err := decodeInto(raw, in); err != nil {
		return nil, prefixed(def.Name, decodeMessages(err))
	}
	if err := validate.Struct(in); err != nil {
		return in, prefixed(def.Name, validationMessages(in, err))
	}
	return in, nil
}

func prefixed(name Name, msgs []string) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = fmt.Sprintf("%s: %s", name, m)
	}
	return out
}

func decodeMessages(err error) []string {
	var merr *mapstructure.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, strings.ReplaceAll(e, "'", ""))
		}
		return out
	}
	return []string{err.Error()}
}

func validationMessages(in Input, err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fieldMessage(in, fe))
	}
	return out
}

func fieldMessage(in Input, fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_without":
		return fmt.Sprintf("%s or %s is required", jsonNameOf(in, fe.Param()), field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, strings.ReplaceAll(fe.Param(), " ", ", "), fmt.Sprint(fe.Value()))
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// fieldPath renders the namespace without the root struct or embedded
// struct names, e.g. "stakeholders[0].name".
func fieldPath(fe validator.FieldError) string {
	parts := strings.Split(fe.Namespace(), ".")
	if len(parts) <= 1 {
		return fe.Field()
	}
	var keep []string
	for _, p := range parts[1:] {
		if p == "ProjectRef" || p == "TaskRef" {
			continue
		}
		keep = append(keep, p)
	}
	return strings.Join(keep, ".")
}

// jsonNameOf maps a Go field name (as used in validator params) to its JSON
// name, searching embedded structs.
func jsonNameOf(in Input, goName string) string {
	t := reflect.TypeOf(in)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if f, ok := t.FieldByName(goName); ok {
		return jsonFieldName(f)
	}
	return goName
}
