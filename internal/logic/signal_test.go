package logic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoltageFullRange(t *testing.T) {
	c := DefaultAnalogConfig()
	for raw := 0; raw <= 1023; raw++ {
		want := float64(raw) * 5.0 / 1023.0
		assert.InDelta(t, want, c.Voltage(raw), 1e-9, "raw=%d", raw)
	}
}

func TestVoltageEndpoints(t *testing.T) {
	c := DefaultAnalogConfig()
	assert.Equal(t, 0.0, c.Voltage(0))
	assert.InDelta(t, 5.0, c.Voltage(1023), 1e-12)
}

func TestTriggeredIsStrict(t *testing.T) {
	c := DefaultAnalogConfig()
	tests := []struct {
		name string
		v    float64
		want bool
	}{
		{"below", 2.99, false},
		{"equal", 3.0, false},
		{"above", 3.01, true},
		{"full scale", 5.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Triggered(tt.v))
		})
	}
}

func TestTriggerBoundaryRaw(t *testing.T) {
	c := DefaultAnalogConfig()
	// 613 * 5/1023 = 2.996, 614 * 5/1023 = 3.0009
	assert.False(t, c.Triggered(c.Voltage(613)))
	assert.True(t, c.Triggered(c.Voltage(614)))
}

func TestAnalogCycleTriggered(t *testing.T) {
	c := DefaultAnalogConfig()
	steps := c.Cycle(1023)

	want := []Step{
		Emit("5.00"),
		Sleep(1000 * time.Millisecond),
		Write(High),
		Sleep(5000 * time.Millisecond),
		Write(Low),
		Sleep(4000 * time.Millisecond),
	}
	assert.Equal(t, want, steps)
	assert.Equal(t, 10*time.Second, Period(steps))
}

func TestAnalogCycleNotTriggered(t *testing.T) {
	c := DefaultAnalogConfig()
	steps := c.Cycle(100)

	want := []Step{
		Emit("0.49"),
		Sleep(1000 * time.Millisecond),
		Write(Low),
		Sleep(4000 * time.Millisecond),
	}
	assert.Equal(t, want, steps)
	assert.Equal(t, 5*time.Second, Period(steps))
}

func TestAnalogIdleKeepsUntriggeredPeriod(t *testing.T) {
	c := DefaultAnalogConfig()
	idle := c.Idle()
	assert.Equal(t, Period(c.Cycle(0)), Period(idle))
	for _, s := range idle {
		assert.NotEqual(t, StepEmit, s.Kind)
		if s.Kind == StepWrite {
			assert.Equal(t, Low, s.Level)
		}
	}
}

func TestAnalogCycleHighOnlyAfterTrigger(t *testing.T) {
	c := DefaultAnalogConfig()
	for _, raw := range []int{0, 300, 613, 614, 800, 1023} {
		steps := c.Cycle(raw)
		highAt := -1
		for i, s := range steps {
			if s.Kind == StepWrite && s.Level == High {
				highAt = i
			}
		}
		if !c.Triggered(c.Voltage(raw)) {
			assert.Equal(t, -1, highAt, "raw=%d should never drive HIGH", raw)
			continue
		}
		require.NotEqual(t, -1, highAt, "raw=%d should drive HIGH", raw)
		require.Greater(t, len(steps), highAt+2)
		assert.Equal(t, Sleep(c.SignalDuration), steps[highAt+1])
		assert.Equal(t, Write(Low), steps[highAt+2])
	}
}

func TestFormatVoltage(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0, "0.00"},
		{3.0009775171065494, "3.00"},
		{2.5, "2.50"},
		{5, "5.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatVoltage(tt.v))
	}
}

func TestDigitalPrelude(t *testing.T) {
	c := DefaultDigitalConfig()
	assert.Equal(t, []Step{Write(High), Sleep(time.Second)}, c.Prelude())
}

func TestDigitalDecideInputHigh(t *testing.T) {
	c := DefaultDigitalConfig()
	want := []Step{
		Write(Low),
		Emit("12 OFF"),
		Sleep(5 * time.Second),
		Sleep(time.Second),
	}
	assert.Equal(t, want, c.Decide(true))
	assert.Equal(t, 7*time.Second, Period(append(c.Prelude(), c.Decide(true)...)))
}

func TestDigitalDecideInputLow(t *testing.T) {
	c := DefaultDigitalConfig()
	assert.Equal(t, []Step{Sleep(time.Second)}, c.Decide(false))
	assert.Equal(t, 2*time.Second, Period(append(c.Prelude(), c.Decide(false)...)))
}

func TestOffMessageUsesOutputPin(t *testing.T) {
	c := DefaultDigitalConfig()
	assert.Equal(t, "12 OFF", c.OffMessage())
	c.OutputPin = 17
	assert.Equal(t, "17 OFF", c.OffMessage())
}

func TestAnalogConfigValidate(t *testing.T) {
	require.NoError(t, DefaultAnalogConfig().Validate())

	c := DefaultAnalogConfig()
	c.FullScale = 0
	c.Reference = -1
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full scale")
	assert.Contains(t, err.Error(), "reference")

	c = DefaultAnalogConfig()
	c.ResetDelay = -time.Second
	assert.Error(t, c.Validate())
}

func TestDigitalConfigValidate(t *testing.T) {
	require.NoError(t, DefaultDigitalConfig().Validate())

	c := DefaultDigitalConfig()
	c.CheckDelay = -1
	assert.Error(t, c.Validate())
}

func TestVariantValid(t *testing.T) {
	assert.True(t, VariantAnalog.Valid())
	assert.True(t, VariantDigital.Valid())
	assert.False(t, Variant("pwm").Valid())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "HIGH", High.String())
	assert.Equal(t, "LOW", Low.String())
}
