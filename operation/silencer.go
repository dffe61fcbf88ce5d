package operation

import (
	"encoding/binary"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
)

const silencerOpSize = 6

// Silencer configures the device-side low-pass filter applied to phase and intensity changes.
//
// Layout: [tag][flag][intensity u16][phase u16].
type Silencer struct {
	single
	flag      uint8
	intensity uint16
	phase     uint16
}

// NewSilencer creates a Silencer operation. With fixedUpdateRate the values are
// per-tick update rates, otherwise they are completion steps. strict asks the
// device to reject sampling configurations the filter cannot follow.
func NewSilencer(fixedUpdateRate, strict bool, intensity, phase uint16) *Silencer {
	var flag uint8
	if fixedUpdateRate {
		flag |= firmware.FlagSilencerFixedUpdateRate
	}
	if strict {
		flag |= firmware.FlagSilencerStrict
	}

	return &Silencer{flag: flag, intensity: intensity, phase: phase}
}

func (o *Silencer) RequiredSize(*geometry.Device) int { return silencerOpSize }

func (o *Silencer) Pack(_ *geometry.Device, buf []byte) (int, error) {
	if err := o.begin(buf, silencerOpSize); err != nil {
		return 0, err
	}
	buf[0] = firmware.TagSilencer
	buf[1] = o.flag
	binary.LittleEndian.PutUint16(buf[2:4], o.intensity)
	binary.LittleEndian.PutUint16(buf[4:6], o.phase)
	o.done = true

	return silencerOpSize, nil
}
