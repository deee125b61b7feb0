package forms

// Validator checks a converted native value.
type Validator func(native any) error

// Field describes one named value of a form.
type Field struct {
	Name  string
	Label string
	Conv  Converter

	// Default is the native value used when the raw key is absent.
	Default any
	// InitialFunc computes the initial value of a new item from request kwargs.
	// When nil, Default is used.
	InitialFunc func(kwargs map[string]any) any

	// RawRequired fields must be present in the wire dict.
	RawRequired bool
	// NotNone fields reject JSON null.
	NotNone bool

	Validators []Validator

	// Widget is opaque front-end configuration echoed in field configs.
	Widget map[string]any
}

// ToNative converts one raw value, handling null before the converter runs.
func (f Field) ToNative(raw any) (any, error) {
	if raw == nil {
		if f.NotNone {
			return nil, Invalid(MsgNotNull)
		}
		return nil, nil
	}
	v, err := f.Conv.ToNative(raw)
	if err != nil {
		if te, ok := err.(*RawValueTypeError); ok && te.Field == "" {
			te.Field = f.Name
		}
		return nil, err
	}
	for _, validate := range f.Validators {
		if err := validate(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// ToRaw converts a native value back to its wire form.
func (f Field) ToRaw(native any) any {
	if native == nil {
		return nil
	}
	return f.Conv.ToRaw(native)
}

// Initial returns the native initial value for a new item.
func (f Field) Initial(kwargs map[string]any) any {
	if f.InitialFunc != nil {
		return f.InitialFunc(kwargs)
	}
	return f.Default
}

// Config describes the field for front-ends.
func (f Field) Config() map[string]any {
	label := f.Label
	if label == "" {
		label = f.Name
	}
	cfg := map[string]any{
		"name":     f.Name,
		"label":    label,
		"type":     f.Conv.TypeName(),
		"required": f.RawRequired || f.NotNone,
	}
	if len(f.Widget) > 0 {
		cfg["widget"] = f.Widget
	}
	return cfg
}

// OneOf rejects string values outside the given set.
func OneOf(allowed ...string) Validator {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return func(native any) error {
		s, _ := native.(string)
		if _, ok := set[s]; !ok {
			return Invalid(MsgNotAllowed)
		}
		return nil
	}
}

// Between rejects integers outside [min, max].
func Between(min, max int64) Validator {
	return func(native any) error {
		v, ok := AsInt64(native)
		if !ok {
			return nil
		}
		if v < min {
			return Invalid(MsgTooSmall)
		}
		if v > max {
			return Invalid(MsgTooLarge)
		}
		return nil
	}
}
