package transport

// Lookup returns the named option, if present.
func (in Interaction) Lookup(name string) (Option, bool) {
	for _, o := range in.Options {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

func (in Interaction) String(name string) string {
	o, ok := in.Lookup(name)
	if !ok {
		return ""
	}
	s, _ := o.Value.(string)
	return s
}

func (in Interaction) Int(name string) (int64, bool) {
	o, ok := in.Lookup(name)
	if !ok {
		return 0, false
	}
	switch v := o.Value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Bool returns the option value, or def when the option was not supplied.
func (in Interaction) Bool(name string, def bool) bool {
	o, ok := in.Lookup(name)
	if !ok {
		return def
	}
	b, ok := o.Value.(bool)
	if !ok {
		return def
	}
	return b
}

// BoolPtr returns nil when the option was not supplied.
func (in Interaction) BoolPtr(name string) *bool {
	o, ok := in.Lookup(name)
	if !ok {
		return nil
	}
	b, ok := o.Value.(bool)
	if !ok {
		return nil
	}
	return &b
}

// Focused returns the option currently being autocompleted.
func (in Interaction) Focused() (Option, bool) {
	for _, o := range in.Options {
		if o.Focused {
			return o, true
		}
	}
	return Option{}, false
}
