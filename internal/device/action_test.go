package device

import (
	"errors"
	"testing"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"ON", Action{Kind: ActionOn}, false},
		{"  off ", Action{Kind: ActionOff}, false},
		{"turn_on", Action{Kind: ActionOn}, false},
		{"Toggle", Action{Kind: ActionToggle}, false},
		{"set_temp 21.5", Action{Kind: ActionSetTemperature, Value: 21.5}, false},
		{"TEMP 18", Action{Kind: ActionSetTemperature, Value: 18}, false},
		{"level 40", Action{Kind: ActionSetLevel, Value: 40}, false},
		{"DIM 0", Action{Kind: ActionSetLevel, Value: 0}, false},
		{"", Action{}, true},
		{"explode", Action{}, true},
		{"ON now", Action{}, true},
		{"SET_TEMP", Action{}, true},
		{"SET_TEMP hot", Action{}, true},
		{"SET_TEMP 90", Action{}, true},
		{"LEVEL 101", Action{}, true},
		{"LEVEL 4.5", Action{}, true},
		{"LEVEL NaN", Action{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAction) {
					t.Errorf("ParseAction(%q) error = %v, want ErrInvalidAction", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAction(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseAction(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAction_StringParsesBack(t *testing.T) {
	for _, a := range []Action{
		{Kind: ActionOn},
		{Kind: ActionOff},
		{Kind: ActionToggle},
		{Kind: ActionSetTemperature, Value: 19.5},
		{Kind: ActionSetLevel, Value: 75},
	} {
		got, err := ParseAction(a.String())
		if err != nil || got != a {
			t.Errorf("ParseAction(%q) = %+v, %v; want %+v", a.String(), got, err, a)
		}
	}
}

func TestType_Supports(t *testing.T) {
	tests := []struct {
		typ  Type
		kind ActionKind
		want bool
	}{
		{TypeLight, ActionSetLevel, true},
		{TypeLight, ActionSetTemperature, false},
		{TypeThermostat, ActionSetTemperature, true},
		{TypeThermostat, ActionSetLevel, false},
		{TypeAppliance, ActionToggle, true},
		{TypeAppliance, ActionSetLevel, false},
		{TypeGeneric, ActionOn, true},
		{Type("toaster"), ActionOn, false},
		{TypeLight, ActionUnknown, false},
	}
	for _, tt := range tests {
		if got := tt.typ.Supports(tt.kind); got != tt.want {
			t.Errorf("%s.Supports(%s) = %v, want %v", tt.typ, tt.kind, got, tt.want)
		}
	}
}

func TestDevice_Apply(t *testing.T) {
	t.Run("switch actions", func(t *testing.T) {
		d := New("fan", "Fan", TypeAppliance)

		out, err := d.Apply(Action{Kind: ActionOn})
		if err != nil || !out.Changed || !out.On {
			t.Fatalf("ON = %+v, %v", out, err)
		}
		out, _ = d.Apply(Action{Kind: ActionOn})
		if out.Changed {
			t.Error("repeated ON should not report a change")
		}
		out, _ = d.Apply(Action{Kind: ActionToggle})
		if !out.Changed || out.On {
			t.Errorf("TOGGLE = %+v, want changed and off", out)
		}
	})

	t.Run("unsupported action leaves device unchanged", func(t *testing.T) {
		d := New("fan", "Fan", TypeAppliance)
		out, err := d.Apply(Action{Kind: ActionSetLevel, Value: 50})
		if !errors.Is(err, ErrUnsupportedAction) {
			t.Fatalf("Apply(LEVEL) error = %v, want ErrUnsupportedAction", err)
		}
		if out.Changed || d.IsOn() {
			t.Error("unsupported action must not change state")
		}
	})

	t.Run("thermostat set point switches on", func(t *testing.T) {
		d := New("heat", "Heat", TypeThermostat)
		out, err := d.Apply(Action{Kind: ActionSetTemperature, Value: 21})
		if err != nil || !out.Changed || !out.On || d.SetPoint() != 21 {
			t.Errorf("SET_TEMP = %+v, %v, set point %v", out, err, d.SetPoint())
		}
		out, _ = d.Apply(Action{Kind: ActionSetTemperature, Value: 21})
		if out.Changed {
			t.Error("same set point should not report a change")
		}
	})

	t.Run("level zero switches light off", func(t *testing.T) {
		d := New("lamp", "Lamp", TypeLight)
		d.Apply(Action{Kind: ActionSetLevel, Value: 60}) //nolint:errcheck // supported
		if !d.IsOn() || d.Level() != 60 {
			t.Fatalf("after LEVEL 60: on=%v level=%d", d.IsOn(), d.Level())
		}
		out, _ := d.Apply(Action{Kind: ActionSetLevel, Value: 0})
		if !out.Changed || out.On {
			t.Errorf("LEVEL 0 = %+v, want changed and off", out)
		}
	})
}

func TestDevice_Execute(t *testing.T) {
	d := New("lamp", "Lamp", TypeLight)

	a, out, err := d.Execute("on")
	if err != nil || a.Kind != ActionOn || !out.On {
		t.Errorf("Execute(on) = %+v %+v %v", a, out, err)
	}

	if _, _, err := d.Execute("launch"); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Execute(launch) error = %v, want ErrInvalidAction", err)
	}
	if _, _, err := d.Execute("SET_TEMP 20"); !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("Execute(SET_TEMP) on light error = %v, want ErrUnsupportedAction", err)
	}
}
