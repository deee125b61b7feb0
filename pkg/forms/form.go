// Package forms converts wire-JSON messages into native values and back.
//
// A Form is an ordered list of fields. Non-strict conversion (ToNative)
// never fails as a whole: it returns every value it could convert together
// with an Errors map for the rest. The strict variant (ToNativeOrErr) is used
// for protocol messages, where any field error rejects the message.
package forms

// Form is an ordered set of fields.
type Form []Field

// Field looks up a field by name.
func (f Form) Field(name string) (Field, bool) {
	for _, field := range f {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// Has reports whether the form declares the named field.
func (f Form) Has(name string) bool {
	_, ok := f.Field(name)
	return ok
}

// Names returns field names in declaration order.
func (f Form) Names() []string {
	names := make([]string, len(f))
	for i, field := range f {
		names[i] = field.Name
	}
	return names
}

// Only returns the subset of keys the form declares, in form order.
func (f Form) Only(keys []string) []string {
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	out := make([]string, 0, len(keys))
	for _, field := range f {
		if _, ok := want[field.Name]; ok {
			out = append(out, field.Name)
		}
	}
	return out
}

func (f Form) selected(keys []string) []Field {
	if keys == nil {
		return f
	}
	var out []Field
	for _, name := range f.Only(keys) {
		field, _ := f.Field(name)
		out = append(out, field)
	}
	return out
}

// ToNative converts the selected keys of raw (all fields when keys is nil).
// Absent keys take the field default, or are omitted when there is none.
func (f Form) ToNative(raw map[string]any, keys []string) (map[string]any, Errors) {
	values := make(map[string]any)
	errs := Errors{}
	for _, field := range f.selected(keys) {
		rv, present := raw[field.Name]
		if !present {
			if field.RawRequired {
				errs[field.Name] = MsgRequired
				continue
			}
			if field.Default != nil {
				values[field.Name] = field.Default
			}
			continue
		}
		v, err := field.ToNative(rv)
		if err != nil {
			errs[field.Name] = ErrorDetail(err)
			continue
		}
		values[field.Name] = v
	}
	return values, errs
}

// ToNativeOrErr is the strict variant of ToNative.
func (f Form) ToNativeOrErr(raw map[string]any, keys []string) (map[string]any, error) {
	values, errs := f.ToNative(raw, keys)
	if len(errs) > 0 {
		return nil, &MessageError{Errors: errs}
	}
	return values, nil
}

// ToRaw converts the selected native values back to wire values.
// Keys missing from values are left out.
func (f Form) ToRaw(values map[string]any, keys []string) map[string]any {
	raw := make(map[string]any, len(values))
	for _, field := range f.selected(keys) {
		v, ok := values[field.Name]
		if !ok {
			continue
		}
		raw[field.Name] = field.ToRaw(v)
	}
	return raw
}

// Initials computes native initial values of every field.
func (f Form) Initials(kwargs map[string]any) map[string]any {
	values := make(map[string]any, len(f))
	for _, field := range f {
		values[field.Name] = field.Initial(kwargs)
	}
	return values
}

// Config lists field configs in declaration order.
func (f Form) Config() []map[string]any {
	cfg := make([]map[string]any, len(f))
	for i, field := range f {
		cfg[i] = field.Config()
	}
	return cfg
}
