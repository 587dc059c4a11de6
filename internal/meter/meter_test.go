// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/sustainable-computing-io/joulemeter/internal/device"
)

const step = 1100 * time.Millisecond

// scenario returns two devices: A measures package_0 and dram_0, B measures psys
func scenario() (*mockDevice, *mockDevice) {
	a := newMockDevice("a",
		[]device.Domain{device.PackageDomain(0), device.DRAMDomain(0)},
		[]float64{100, 100},
		[]float64{1.0, 1.1}, []float64{2.0, 2.2}, []float64{3.0, 3.4},
	)
	b := newMockDevice("b",
		[]device.Domain{device.PsysDomain()},
		[]float64{100},
		[]float64{4.0}, []float64{6.2}, []float64{8.0},
	)
	return a, b
}

func newFakeClock() *testingclock.FakeClock {
	return testingclock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestEnergyMeter_TwoDevices(t *testing.T) {
	a, b := scenario()
	fakeClock := newFakeClock()
	m := NewEnergyMeter([]device.EnergyDevice{a, b}, WithClock(fakeClock))

	fakeClock.Step(step)
	require.NoError(t, m.Start(""))
	fakeClock.Step(step)
	require.NoError(t, m.Record(""))
	fakeClock.Step(step)
	require.NoError(t, m.Stop())

	samples, err := m.Samples()
	require.NoError(t, err)
	require.Len(t, samples, 2)

	first := samples[0]
	assert.InDelta(t, 1.1, first.Timestamp, 1e-9)
	assert.InDelta(t, 1.1, first.Duration, 1e-9)
	assert.Equal(t, []string{"package_0", "dram_0", "psys"}, first.Domains())
	assert.InDelta(t, 1.0, first.Energy["package_0"], 1e-9)
	assert.InDelta(t, 1.1, first.Energy["dram_0"], 1e-9)
	assert.InDelta(t, 2.2, first.Energy["psys"], 1e-9)

	second := samples[1]
	assert.InDelta(t, 2.2, second.Timestamp, 1e-9)
	assert.InDelta(t, 1.1, second.Duration, 1e-9)
	assert.InDelta(t, 1.0, second.Energy["package_0"], 1e-9)
	assert.InDelta(t, 1.2, second.Energy["dram_0"], 1e-9)
	assert.InDelta(t, 1.8, second.Energy["psys"], 1e-9)

	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestEnergyMeter_Tags(t *testing.T) {
	a, b := scenario()
	m := NewEnergyMeter([]device.EnergyDevice{a, b}, WithClock(newFakeClock()))

	require.NoError(t, m.Start("s1"))
	require.NoError(t, m.Record("s2"))
	require.NoError(t, m.Stop())

	s1, err := m.Sample("s1")
	require.NoError(t, err)
	assert.InDelta(t, 2.2, s1.Energy["psys"], 1e-9)

	s2, err := m.Sample("s2")
	require.NoError(t, err)
	assert.InDelta(t, 1.8, s2.Energy["psys"], 1e-9)

	_, err = m.Sample("s3")
	var notFound ErrSampleNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "s3", notFound.Tag)
}

func TestEnergyMeter_DefaultTag(t *testing.T) {
	a, b := scenario()
	m := NewEnergyMeter([]device.EnergyDevice{a, b}, WithClock(newFakeClock()), WithDefaultTag("default"))

	require.NoError(t, m.Start(""))
	require.NoError(t, m.Record("custom"))
	require.NoError(t, m.Stop())

	samples, err := m.Samples()
	require.NoError(t, err)
	assert.Equal(t, "default", samples[0].Tag)
	assert.Equal(t, "custom", samples[1].Tag)
}

func TestEnergyMeter_FirstMatchWins(t *testing.T) {
	dev, err := device.NewFakeDevice([]device.Domain{device.PackageDomain(0)}, device.WithFakeIncrement(device.Joule))
	require.NoError(t, err)

	fakeClock := newFakeClock()
	m := NewEnergyMeter([]device.EnergyDevice{dev}, WithClock(fakeClock))
	require.NoError(t, m.Start("dup"))
	fakeClock.Step(time.Second)
	require.NoError(t, m.Record("other"))
	fakeClock.Step(time.Second)
	require.NoError(t, m.Record("dup"))
	fakeClock.Step(time.Second)
	require.NoError(t, m.Stop())

	got, err := m.Sample("dup")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got.Timestamp, 1e-9)

	samples, err := m.Samples()
	require.NoError(t, err)
	assert.Equal(t, samples[0], got)
	assert.Equal(t, "dup", samples[2].Tag)
}

func TestEnergyMeter_SampleCountAndDurations(t *testing.T) {
	for _, records := range []int{0, 1, 5} {
		dev, err := device.NewFakeDevice(nil)
		require.NoError(t, err)

		fakeClock := newFakeClock()
		m := NewEnergyMeter([]device.EnergyDevice{dev}, WithClock(fakeClock))

		fakeClock.Step(250 * time.Millisecond)
		require.NoError(t, m.Start("start"))
		startedAt := fakeClock.Since(m.origin).Seconds()

		for i := range records {
			fakeClock.Step(time.Duration(i+1) * 300 * time.Millisecond)
			require.NoError(t, m.Record("record"))
		}
		fakeClock.Step(700 * time.Millisecond)
		require.NoError(t, m.Stop())
		stoppedAt := fakeClock.Since(m.origin).Seconds()

		samples, err := m.Samples()
		require.NoError(t, err)
		assert.Len(t, samples, records+1)

		total := 0.0
		prev := -1.0
		for _, s := range samples {
			assert.GreaterOrEqual(t, s.Duration, 0.0)
			assert.GreaterOrEqual(t, s.Timestamp, prev)
			prev = s.Timestamp
			total += s.Duration
		}
		assert.InDelta(t, stoppedAt-startedAt, total, 1e-9)
	}
}

func TestEnergyMeter_AllIsRestartable(t *testing.T) {
	a, b := scenario()
	m := NewEnergyMeter([]device.EnergyDevice{a, b}, WithClock(newFakeClock()))
	require.NoError(t, m.Start("s1"))
	require.NoError(t, m.Record("s2"))
	require.NoError(t, m.Stop())

	seq, err := m.All()
	require.NoError(t, err)

	var first, second []Sample
	for s := range seq {
		first = append(first, s)
	}
	for s := range seq {
		second = append(second, s)
	}
	assert.Len(t, first, 2)
	assert.Equal(t, first, second)

	// an early break does not consume the sequence
	for s := range seq {
		assert.Equal(t, "s1", s.Tag)
		break
	}
	other, err := m.All()
	require.NoError(t, err)
	count := 0
	for range other {
		count++
	}
	assert.Equal(t, 2, count)
}

func TestEnergyMeter_LifecycleErrors(t *testing.T) {
	dev, err := device.NewFakeDevice(nil)
	require.NoError(t, err)
	m := NewEnergyMeter([]device.EnergyDevice{dev}, WithClock(newFakeClock()))

	var notStarted ErrMeterNotStarted
	var notStopped ErrMeterNotStopped
	var stopped ErrMeterStopped
	var alreadyStarted ErrMeterAlreadyStarted

	assert.Equal(t, NotStarted, m.State())
	assert.ErrorAs(t, m.Stop(), &notStarted)
	assert.Equal(t, "stop", notStarted.Op)
	assert.ErrorAs(t, m.Record("x"), &notStarted)
	_, err = m.Sample("x")
	assert.ErrorAs(t, err, &notStarted)
	_, err = m.Samples()
	assert.ErrorAs(t, err, &notStarted)
	_, err = m.All()
	assert.ErrorAs(t, err, &notStarted)

	require.NoError(t, m.Start(""))
	assert.Equal(t, Started, m.State())
	assert.ErrorAs(t, m.Start(""), &alreadyStarted)
	_, err = m.Sample("")
	assert.ErrorAs(t, err, &notStopped)
	_, err = m.Samples()
	assert.ErrorAs(t, err, &notStopped)
	_, err = m.All()
	assert.ErrorAs(t, err, &notStopped)

	require.NoError(t, m.Stop())
	assert.Equal(t, Stopped, m.State())
	assert.ErrorAs(t, m.Stop(), &stopped)
	assert.ErrorAs(t, m.Record(""), &stopped)
	assert.ErrorAs(t, m.Start(""), &alreadyStarted)

	samples, err := m.Samples()
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestEnergyMeter_FailedReadLeavesStateUnchanged(t *testing.T) {
	boom := errors.New("counter unavailable")
	domains := []device.Domain{device.PackageDomain(0)}

	dev := &mockDevice{}
	dev.On("Name").Return("flaky").Maybe()
	dev.On("Domains").Return(domains).Maybe()
	dev.On("MaxEnergy").Return([]float64{0}).Maybe()
	dev.On("Energy").Return(nil, boom).Once()
	dev.On("Energy").Return([]float64{1.0}, nil).Once()
	dev.On("Energy").Return(nil, boom).Once()
	dev.On("Energy").Return([]float64{3.0}, nil).Once()
	dev.On("Energy").Return(nil, boom).Once()
	dev.On("Energy").Return([]float64{4.5}, nil).Once()

	fakeClock := newFakeClock()
	m := NewEnergyMeter([]device.EnergyDevice{dev}, WithClock(fakeClock))

	assert.ErrorIs(t, m.Start("first"), boom)
	assert.Equal(t, NotStarted, m.State())
	require.NoError(t, m.Start("first"))

	fakeClock.Step(time.Second)
	assert.ErrorIs(t, m.Record("second"), boom)
	require.NoError(t, m.Record("second"))

	fakeClock.Step(time.Second)
	assert.ErrorIs(t, m.Stop(), boom)
	assert.Equal(t, Started, m.State())
	require.NoError(t, m.Stop())

	samples, err := m.Samples()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "first", samples[0].Tag)
	assert.InDelta(t, 2.0, samples[0].Energy["package_0"], 1e-9)
	assert.Equal(t, "second", samples[1].Tag)
	assert.InDelta(t, 1.5, samples[1].Energy["package_0"], 1e-9)

	dev.AssertExpectations(t)
}

func TestEnergyMeter_ReadingCountMismatch(t *testing.T) {
	dev := newMockDevice("short",
		[]device.Domain{device.PackageDomain(0), device.DRAMDomain(0)},
		[]float64{0, 0},
		[]float64{1.0},
	)
	m := NewEnergyMeter([]device.EnergyDevice{dev}, WithClock(newFakeClock()))
	assert.ErrorContains(t, m.Start(""), "1 readings for 2 domains")
	assert.Equal(t, NotStarted, m.State())
}

func TestEnergyMeter_Wraparound(t *testing.T) {
	dev := newMockDevice("wrapping",
		[]device.Domain{device.PackageDomain(0)},
		[]float64{1000},
		[]float64{990}, []float64{5},
	)
	m := NewEnergyMeter([]device.EnergyDevice{dev}, WithClock(newFakeClock()))
	require.NoError(t, m.Start(""))
	require.NoError(t, m.Stop())

	s, err := m.Sample("")
	require.NoError(t, err)
	assert.InDelta(t, 15.0, s.Energy["package_0"], 1e-9)
}

func TestEnergyMeter_FakeDeviceWraparound(t *testing.T) {
	dev, err := device.NewFakeDevice([]device.Domain{device.PackageDomain(0)},
		device.WithFakeIncrement(4*device.Joule),
		device.WithFakeMaxEnergy(10*device.Joule),
	)
	require.NoError(t, err)

	m := NewEnergyMeter([]device.EnergyDevice{dev}, WithClock(newFakeClock()))
	require.NoError(t, m.Start(""))
	require.NoError(t, m.Record(""))
	require.NoError(t, m.Record(""))
	require.NoError(t, m.Stop())

	seq, err := m.All()
	require.NoError(t, err)
	for s := range seq {
		assert.InDelta(t, 4.0, s.Energy["package_0"], 1e-9)
	}
}

func TestEnergyMeter_DuplicateLabelsAcrossDevices(t *testing.T) {
	domains := []device.Domain{device.PackageDomain(0)}
	a := newMockDevice("a", domains, []float64{0}, []float64{1}, []float64{2})
	b := newMockDevice("b", domains, []float64{0}, []float64{10}, []float64{15})

	m := NewEnergyMeter([]device.EnergyDevice{a, b}, WithClock(newFakeClock()))
	require.NoError(t, m.Start(""))
	require.NoError(t, m.Stop())

	s, err := m.Sample("")
	require.NoError(t, err)
	assert.Equal(t, []string{"package_0"}, s.Domains())
	assert.InDelta(t, 5.0, s.Energy["package_0"], 1e-9)
}

func TestEnergyMeter_NoDevices(t *testing.T) {
	m := NewEnergyMeter(nil, WithClock(newFakeClock()))
	require.NoError(t, m.Start(""))
	require.NoError(t, m.Stop())

	samples, err := m.Samples()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Empty(t, samples[0].Energy)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "not-started", NotStarted.String())
	assert.Equal(t, "started", Started.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "unknown(7)", State(7).String())
}

func TestEnergyMeter_ReturnedSamplesAreCopies(t *testing.T) {
	a, b := scenario()
	m := NewEnergyMeter([]device.EnergyDevice{a, b}, WithClock(newFakeClock()))

	require.NoError(t, m.Start("s1"))
	require.NoError(t, m.Record("s2"))
	require.NoError(t, m.Stop())

	s1, err := m.Sample("s1")
	require.NoError(t, err)
	s1.Energy["package_0"] = 999

	all, err := m.All()
	require.NoError(t, err)
	for s := range all {
		s.Energy["dram_0"] = -1
	}

	samples, err := m.Samples()
	require.NoError(t, err)
	samples[1].Energy["psys"] = 42

	stored, err := m.Samples()
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.InDelta(t, 1.0, stored[0].Energy["package_0"], 1e-9)
	assert.InDelta(t, 1.1, stored[0].Energy["dram_0"], 1e-9)
	assert.InDelta(t, 1.8, stored[1].Energy["psys"], 1e-9)

	again, err := m.Sample("s1")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, again.Energy["package_0"], 1e-9)
	assert.Equal(t, []string{"package_0", "dram_0", "psys"}, again.Domains())
}
