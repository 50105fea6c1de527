package registry

import "fmt"

// ToJSONSchema renders an ObjectShape into the map[string]interface{}
// form tools/list advertises to clients. Both SchemaShape
// constructors (Simple/Complex) render through this one path, so the
// advertised JSON shape does not depend on the Complex/Simple tag.
func ToJSONSchema(shape ObjectShape) map[string]interface{} {
	props := make(map[string]interface{}, len(shape.Fields))
	for name, f := range shape.Fields {
		props[name] = fieldToJSONSchema(f)
	}
	out := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(shape.Required) > 0 {
		out["required"] = shape.Required
	}
	if shape.Additional == AdditionalDeny {
		out["additionalProperties"] = false
	}
	return out
}

func fieldToJSONSchema(f Field) map[string]interface{} {
	out := map[string]interface{}{}
	switch f.Kind {
	case FieldString:
		out["type"] = "string"
		if len(f.Enum) > 0 {
			out["enum"] = f.Enum
		}
		if f.Format != "" {
			out["format"] = f.Format
		}
		if f.MinLen > 0 {
			out["minLength"] = f.MinLen
		}
		if f.MaxLen > 0 {
			out["maxLength"] = f.MaxLen
		}
	case FieldNumber:
		if f.IsInt {
			out["type"] = "integer"
		} else {
			out["type"] = "number"
		}
		if f.HasMin {
			out["minimum"] = f.Min
		}
		if f.HasMax {
			out["maximum"] = f.Max
		}
	case FieldBoolean:
		out["type"] = "boolean"
	case FieldArray:
		out["type"] = "array"
		if f.Elem != nil {
			out["items"] = fieldToJSONSchema(*f.Elem)
		}
	case FieldObject:
		if f.Shape != nil {
			return ToJSONSchema(*f.Shape)
		}
		out["type"] = "object"
	case FieldLiteral:
		out["const"] = f.Literal
	case FieldAny:
		// no "type" constrains an "any" field.
	}
	if f.HasDefault {
		out["default"] = f.DefaultValue
	}
	return out
}

// ValidateParams checks a tools/call argument map against a tool's
// recorded input shape, returning a descriptive error (wrapped by the
// dispatcher into -32602 InvalidParams) on the first violation found.
func ValidateParams(params map[string]interface{}, shape ObjectShape) error {
	for _, name := range shape.Required {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("%w: missing required field %q", ErrInvalidParams, name)
		}
	}
	for name, v := range params {
		f, ok := shape.Fields[name]
		if !ok {
			if shape.Additional == AdditionalDeny {
				return fmt.Errorf("%w: unexpected field %q", ErrInvalidParams, name)
			}
			continue
		}
		if err := validateField(name, v, f); err != nil {
			return err
		}
	}
	return nil
}

func validateField(name string, v interface{}, f Field) error {
	if v == nil {
		if f.Optional || f.HasDefault {
			return nil
		}
		return fmt.Errorf("%w: field %q must not be null", ErrInvalidParams, name)
	}
	switch f.Kind {
	case FieldString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: field %q must be a string", ErrInvalidParams, name)
		}
		if f.MinLen > 0 && len(s) < f.MinLen {
			return fmt.Errorf("%w: field %q shorter than minimum length %d", ErrInvalidParams, name, f.MinLen)
		}
		if f.MaxLen > 0 && len(s) > f.MaxLen {
			return fmt.Errorf("%w: field %q longer than maximum length %d", ErrInvalidParams, name, f.MaxLen)
		}
		if len(f.Enum) > 0 && !stringInSlice(s, f.Enum) {
			return fmt.Errorf("%w: field %q is not one of the allowed values", ErrInvalidParams, name)
		}
	case FieldNumber:
		n, ok := asFloat(v)
		if !ok {
			return fmt.Errorf("%w: field %q must be a number", ErrInvalidParams, name)
		}
		if f.IsInt && n != float64(int64(n)) {
			return fmt.Errorf("%w: field %q must be an integer", ErrInvalidParams, name)
		}
		if f.HasMin && n < f.Min {
			return fmt.Errorf("%w: field %q below minimum %v", ErrInvalidParams, name, f.Min)
		}
		if f.HasMax && n > f.Max {
			return fmt.Errorf("%w: field %q above maximum %v", ErrInvalidParams, name, f.Max)
		}
	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%w: field %q must be a boolean", ErrInvalidParams, name)
		}
	case FieldArray:
		arr, ok := v.([]interface{})
		if !ok {
			return fmt.Errorf("%w: field %q must be an array", ErrInvalidParams, name)
		}
		if f.Elem != nil {
			for i, elem := range arr {
				if err := validateField(fmt.Sprintf("%s[%d]", name, i), elem, *f.Elem); err != nil {
					return err
				}
			}
		}
	case FieldObject:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: field %q must be an object", ErrInvalidParams, name)
		}
		if f.Shape != nil {
			return ValidateParams(obj, *f.Shape)
		}
	case FieldLiteral, FieldAny:
		// Accept any representation.
	}
	return nil
}

func stringInSlice(s string, list []string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
