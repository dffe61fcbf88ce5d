package operation

import (
	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/geometry"
	"github.com/arloliu/go-autd/segment"
)

const twoByteOpSize = 2

// twoByte is the layout shared by the tag-plus-value operations.
type twoByte struct {
	single
	tag   firmware.Tag
	value uint8
}

func (o *twoByte) RequiredSize(*geometry.Device) int { return twoByteOpSize }

func (o *twoByte) Pack(_ *geometry.Device, buf []byte) (int, error) {
	if err := o.begin(buf, twoByteOpSize); err != nil {
		return 0, err
	}
	buf[0] = o.tag
	buf[1] = o.value
	o.done = true

	return twoByteOpSize, nil
}

// Clear resets the device to its power-on state.
type Clear struct{ twoByte }

// NewClear creates a Clear operation.
func NewClear() *Clear { return &Clear{twoByte{tag: firmware.TagClear}} }

// SegmentEffect reports that a clear resets every bank.
func (o *Clear) SegmentEffect() (segment.Effect, bool) {
	return segment.Effect{Kind: segment.EffectReset}, o.done
}

// Synchronize aligns the device clocks.
type Synchronize struct{ twoByte }

// NewSynchronize creates a Synchronize operation.
func NewSynchronize() *Synchronize { return &Synchronize{twoByte{tag: firmware.TagSync}} }

// FirmwareInfo asks the device to put one version byte into the ack data byte.
type FirmwareInfo struct{ twoByte }

// NewFirmwareInfo creates a FirmwareInfo operation for the given info type.
func NewFirmwareInfo(typ firmware.InfoType) *FirmwareInfo {
	return &FirmwareInfo{twoByte{tag: firmware.TagFirmwareInfo, value: uint8(typ)}}
}

// ForceFan forces the cooling fan on or lets the device control it.
type ForceFan struct{ twoByte }

// NewForceFan creates a ForceFan operation.
func NewForceFan(on bool) *ForceFan {
	return &ForceFan{twoByte{tag: firmware.TagForceFan, value: boolByte(on)}}
}

// ReadsFPGAState enables or disables reporting of the FPGA state in the ack data byte.
type ReadsFPGAState struct{ twoByte }

// NewReadsFPGAState creates a ReadsFPGAState operation.
func NewReadsFPGAState(enable bool) *ReadsFPGAState {
	return &ReadsFPGAState{twoByte{tag: firmware.TagReadsFPGAState, value: boolByte(enable)}}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}

	return 0
}
