package i2c

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/airsense"
	"github.com/mklimuk/airsense/co2"
)

func TestGenericBusSerialNumber(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: co2.DefaultAddress, W: []byte{0x36, 0x82}},
			{Addr: co2.DefaultAddress, R: []byte{0xf8, 0x96, 0x31, 0x9f, 0x07, 0xc2, 0x3b, 0xbe, 0x89}},
		},
	}
	bus := WrapBus(playback)
	require.NoError(t, bus.SetSpeed(100*physic.KiloHertz))

	sensor := co2.New(bus, co2.WithDelayer(airsense.SleepDelay))
	serial, err := sensor.GetSerialNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(273325796834238), serial)
	require.NoError(t, bus.Release(context.Background()))
	require.NoError(t, bus.Close())
}

func TestGenericBusErrors(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops:       []i2ctest.IO{{Addr: co2.DefaultAddress, W: []byte{0x21, 0xb1}}},
		DontPanic: true,
	}
	bus := WrapBus(playback)

	// unexpected bytes
	err := bus.WriteToAddr(context.Background(), co2.DefaultAddress, []byte{0x3f, 0x86})
	assert.Error(t, err)
	err = bus.ReadFromAddr(context.Background(), co2.DefaultAddress, make([]byte, 3))
	assert.Error(t, err)
}
