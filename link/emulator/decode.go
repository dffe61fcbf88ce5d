package emulator

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/operation"
	"github.com/arloliu/go-autd/segment"
)

// Header sizes of the multi-frame layouts.
const (
	modHeadSize     = 16
	stmSubseqSize   = 4
	fociHeadSize    = 24
	gainSTMHeadSize = 20
	focusSize       = 8
)

func (d *Device) processSlot(buf []byte, now uint64) error {
	if len(buf) < 2 {
		return link.ErrInvalidFrame
	}

	switch buf[0] {
	case firmware.TagNop:
		return nil
	case firmware.TagClear:
		d.reset()
		return nil
	case firmware.TagSync:
		d.synchronized = true
		return nil
	case firmware.TagFirmwareInfo:
		return d.firmwareInfo(firmware.InfoType(buf[1]))
	case firmware.TagModulation:
		return d.modulation(buf, now)
	case firmware.TagModulationSwapSegment:
		return d.swap(segment.ModeModulation, buf, now)
	case firmware.TagSilencer:
		return d.setSilencer(buf)
	case firmware.TagGain:
		return d.gain(buf, now)
	case firmware.TagGainSwapSegment:
		seg, err := parseSegment(buf[1])
		if err != nil {
			return err
		}
		return d.segments.Swap(segment.ModeGain, seg, firmware.Immediate(), now)
	case firmware.TagFociSTM:
		return d.fociSTMWrite(buf, now)
	case firmware.TagGainSTM:
		return d.gainSTMWrite(buf, now)
	case firmware.TagFociSTMSwapSegment:
		return d.swap(segment.ModeFociSTM, buf, now)
	case firmware.TagGainSTMSwapSegment:
		return d.swap(segment.ModeGainSTM, buf, now)
	case firmware.TagForceFan:
		d.fanForced = buf[1] != 0
		return nil
	case firmware.TagReadsFPGAState:
		d.readsFPGAState = buf[1] != 0
		return nil
	case firmware.TagConfigPulseWidthEncoderV10, firmware.TagConfigPulseWidthEncoderV11:
		return d.pulseWidthEncoder(buf)
	case firmware.TagPhaseCorrection:
		if len(buf) < 2+d.numTrans {
			return link.ErrInvalidFrame
		}
		copy(d.phaseCorrection, buf[2:2+d.numTrans])
		return nil
	case firmware.TagOutputMask:
		return d.setOutputMask(buf)
	case firmware.TagEmulateGPIOIn:
		d.emulateGPIOIn(buf[1])
		return nil
	case firmware.TagGPIOOutputs:
		return d.setGPIOOutputs(buf)
	case firmware.TagCPUGPIOOutputs:
		d.cpuGPIO = firmware.DecodeCPUGPIOPort(buf[1])
		return nil
	default:
		return fmt.Errorf("%w: 0x%02X", firmware.ErrNotSupportedTag, buf[0])
	}
}

func parseSegment(b byte) (firmware.Segment, error) {
	if b > 1 {
		return 0, fmt.Errorf("%w: segment %d", firmware.ErrInvalidSegmentTransition, b)
	}

	return firmware.Segment(b), nil
}

func (d *Device) parseTransition(mode uint8, value uint64) (firmware.TransitionMode, error) {
	tr, ok := firmware.TransitionFromWire(mode, value)
	if !ok || !d.cfg.version.SupportsTransition(tr) {
		return firmware.TransitionMode{}, fmt.Errorf("%w: mode 0x%02X", firmware.ErrInvalidTransitionMode, mode)
	}

	return tr, nil
}

func (d *Device) firmwareInfo(t firmware.InfoType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", firmware.ErrInvalidInfoType, t)
	}
	if t == firmware.InfoClear {
		d.infoType = 0
		return nil
	}
	d.infoType = t

	return nil
}

// checkSilencer validates sampling dividers against strict completion steps.
func (d *Device) checkSilencer(modDiv, stmDiv uint16) error {
	s := d.silencer
	if !s.Strict || s.FixedUpdateRate {
		return nil
	}
	if modDiv != 0 && modDiv < s.Intensity {
		return fmt.Errorf("%w: modulation divider %d below %d steps", firmware.ErrInvalidSilencerSettings, modDiv, s.Intensity)
	}
	if stmDiv != 0 && stmDiv < s.Phase {
		return fmt.Errorf("%w: STM divider %d below %d steps", firmware.ErrInvalidSilencerSettings, stmDiv, s.Phase)
	}

	return nil
}

func (d *Device) setSilencer(buf []byte) error {
	if len(buf) < 6 {
		return link.ErrInvalidFrame
	}
	prev := d.silencer
	d.silencer = SilencerState{
		FixedUpdateRate: buf[1]&firmware.FlagSilencerFixedUpdateRate != 0,
		Strict:          buf[1]&firmware.FlagSilencerStrict != 0,
		Intensity:       binary.LittleEndian.Uint16(buf[2:4]),
		Phase:           binary.LittleEndian.Uint16(buf[4:6]),
	}

	modDiv := d.modConfig[d.segments.Active(segment.Modulation)].FreqDiv
	var stmDiv uint16
	if d.segments.ActiveMode(segment.STM) != segment.ModeGain {
		stmDiv = d.stmConfig[d.segments.Active(segment.STM)].FreqDiv
	}
	if err := d.checkSilencer(modDiv, stmDiv); err != nil {
		d.silencer = prev
		return err
	}

	return nil
}

func (d *Device) modulation(buf []byte, now uint64) error {
	flag := buf[1]
	if flag&firmware.FlagBegin != 0 {
		if len(buf) < modHeadSize {
			return link.ErrInvalidFrame
		}
		size := int(buf[2])
		if modHeadSize+size > len(buf) {
			return link.ErrInvalidFrame
		}
		tr, err := d.parseTransition(buf[3], binary.LittleEndian.Uint64(buf[8:16]))
		if err != nil {
			return err
		}
		seg := firmware.S0
		if flag&firmware.FlagSegment != 0 {
			seg = firmware.S1
		}
		d.modStream = stream{
			active:     true,
			segment:    seg,
			transition: tr,
			config:     firmware.SamplingConfig{FreqDiv: binary.LittleEndian.Uint16(buf[4:6])},
			loop:       firmware.LoopFromRep(binary.LittleEndian.Uint16(buf[6:8])),
		}
		d.modPending = append(d.modPending[:0], buf[modHeadSize:modHeadSize+size]...)
	} else {
		if len(buf) < stmSubseqSize {
			return link.ErrInvalidFrame
		}
		if !d.modStream.active {
			d.cfg.logger.Debug("emulated device dropped modulation chunk without head", "device", d.idx)
			return nil
		}
		size := int(binary.LittleEndian.Uint16(buf[2:4]))
		if stmSubseqSize+size > len(buf) {
			return link.ErrInvalidFrame
		}
		d.modPending = append(d.modPending, buf[stmSubseqSize:stmSubseqSize+size]...)
	}

	if flag&firmware.FlagEnd == 0 {
		return nil
	}
	st := d.modStream
	d.modStream = stream{}
	if err := d.checkSilencer(st.config.FreqDiv, 0); err != nil {
		return err
	}
	tr := st.transition
	if flag&firmware.FlagTransition == 0 {
		tr = firmware.Later()
	}
	if err := d.segments.Write(segment.ModeModulation, st.segment, st.loop, tr, now); err != nil {
		return err
	}
	d.modBuf[st.segment] = slices.Clone(d.modPending)
	d.modConfig[st.segment] = st.config

	return nil
}

func (d *Device) swap(mode segment.Mode, buf []byte, now uint64) error {
	if len(buf) < 16 {
		return link.ErrInvalidFrame
	}
	seg, err := parseSegment(buf[1])
	if err != nil {
		return err
	}
	tr, err := d.parseTransition(buf[2], binary.LittleEndian.Uint64(buf[8:16]))
	if err != nil {
		return err
	}

	return d.segments.Swap(mode, seg, tr, now)
}

func (d *Device) gain(buf []byte, now uint64) error {
	if len(buf) < 4+2*d.numTrans {
		return link.ErrInvalidFrame
	}
	seg, err := parseSegment(buf[1])
	if err != nil {
		return err
	}
	tr := firmware.Later()
	if buf[2]&firmware.FlagGainUpdate != 0 {
		tr = firmware.Immediate()
	}
	if err := d.segments.Write(segment.ModeGain, seg, firmware.Infinite(), tr, now); err != nil {
		return err
	}
	drives := make([]firmware.Drive, d.numTrans)
	for i := range drives {
		drives[i] = firmware.Drive{Phase: buf[4+2*i], Intensity: buf[4+2*i+1]}
	}
	d.gains[seg] = drives

	return nil
}

func (d *Device) fociSTMWrite(buf []byte, now uint64) error {
	if len(buf) < stmSubseqSize {
		return link.ErrInvalidFrame
	}
	flag, sendNum := buf[1], int(buf[2])
	seg, err := parseSegment(buf[3])
	if err != nil {
		return err
	}

	hdr := stmSubseqSize
	if flag&firmware.FlagBegin != 0 {
		if len(buf) < fociHeadSize {
			return link.ErrInvalidFrame
		}
		tr, err := d.parseTransition(buf[4], binary.LittleEndian.Uint64(buf[16:24]))
		if err != nil {
			return err
		}
		d.stmStream = stream{
			active:     true,
			segment:    seg,
			transition: tr,
			numFoci:    int(buf[5]),
			config:     firmware.SamplingConfig{FreqDiv: binary.LittleEndian.Uint16(buf[8:10])},
			loop:       firmware.LoopFromRep(binary.LittleEndian.Uint16(buf[10:12])),
		}
		d.fociPending = d.fociPending[:0]
		hdr = fociHeadSize
	} else if !d.stmStream.active || d.stmStream.numFoci == 0 {
		d.cfg.logger.Debug("emulated device dropped FociSTM chunk without head", "device", d.idx)
		return nil
	}

	numFoci := d.stmStream.numFoci
	if numFoci == 0 || hdr+sendNum*numFoci*focusSize > len(buf) {
		return link.ErrInvalidFrame
	}
	for s := 0; s < sendNum; s++ {
		cp := operation.ControlPoints{Foci: make([]operation.Focus, numFoci)}
		for f := 0; f < numFoci; f++ {
			off := hdr + (s*numFoci+f)*focusSize
			pos, value := operation.DecodeFocus(binary.LittleEndian.Uint64(buf[off : off+focusSize]))
			cp.Foci[f].Pos = pos
			if f == 0 {
				cp.Intensity = value
			} else {
				cp.Foci[f].Offset = value
			}
		}
		d.fociPending = append(d.fociPending, cp)
	}

	if flag&firmware.FlagEnd == 0 {
		return nil
	}
	st := d.stmStream
	d.stmStream = stream{}
	if err := d.checkSilencer(0, st.config.FreqDiv); err != nil {
		return err
	}
	tr := st.transition
	if flag&firmware.FlagTransition == 0 {
		tr = firmware.Later()
	}
	if err := d.segments.Write(segment.ModeFociSTM, st.segment, st.loop, tr, now); err != nil {
		return err
	}
	d.foci[st.segment] = slices.Clone(d.fociPending)
	d.stmConfig[st.segment] = st.config

	return nil
}

func (d *Device) gainSTMWrite(buf []byte, now uint64) error {
	if len(buf) < stmSubseqSize {
		return link.ErrInvalidFrame
	}
	flag := buf[1]

	var segByte byte
	var sendNum, hdr int
	if flag&firmware.FlagBegin != 0 {
		if len(buf) < gainSTMHeadSize {
			return link.ErrInvalidFrame
		}
		mode := firmware.GainSTMMode(buf[2])
		if mode > firmware.GainSTMPhaseHalf {
			return fmt.Errorf("%w: %d", firmware.ErrInvalidGainSTMMode, mode)
		}
		tr, err := d.parseTransition(buf[3], binary.LittleEndian.Uint64(buf[8:16]))
		if err != nil {
			return err
		}
		segByte, sendNum, hdr = buf[16], int(buf[17]), gainSTMHeadSize
		d.stmStream = stream{
			active:      true,
			transition:  tr,
			gainSTMMode: mode,
			config:      firmware.SamplingConfig{FreqDiv: binary.LittleEndian.Uint16(buf[4:6])},
			loop:        firmware.LoopFromRep(binary.LittleEndian.Uint16(buf[6:8])),
		}
		d.gainSTMPending = d.gainSTMPending[:0]
	} else {
		if !d.stmStream.active || d.stmStream.numFoci != 0 {
			d.cfg.logger.Debug("emulated device dropped GainSTM chunk without head", "device", d.idx)
			return nil
		}
		segByte, sendNum, hdr = buf[2], int(buf[3]), stmSubseqSize
	}
	seg, err := parseSegment(segByte)
	if err != nil {
		return err
	}
	d.stmStream.segment = seg

	if hdr+2*d.numTrans > len(buf) || sendNum > d.stmStream.gainSTMMode.PatternsPerFrame() {
		return link.ErrInvalidFrame
	}
	body := buf[hdr : hdr+2*d.numTrans]
	for i := 0; i < sendNum; i++ {
		drives := make([]firmware.Drive, d.numTrans)
		for t := range drives {
			switch d.stmStream.gainSTMMode {
			case firmware.GainSTMPhaseFull:
				drives[t] = firmware.Drive{Phase: body[2*t+i], Intensity: firmware.MaxIntensity}
			case firmware.GainSTMPhaseHalf:
				nibble := (body[2*t+i/2] >> (4 * (i % 2))) & 0x0F
				drives[t] = firmware.Drive{Phase: nibble << 4, Intensity: firmware.MaxIntensity}
			default:
				drives[t] = firmware.Drive{Phase: body[2*t], Intensity: body[2*t+1]}
			}
		}
		d.gainSTMPending = append(d.gainSTMPending, drives)
	}

	if flag&firmware.FlagEnd == 0 {
		return nil
	}
	st := d.stmStream
	d.stmStream = stream{}
	if err := d.checkSilencer(0, st.config.FreqDiv); err != nil {
		return err
	}
	tr := st.transition
	if flag&firmware.FlagTransition == 0 {
		tr = firmware.Later()
	}
	if err := d.segments.Write(segment.ModeGainSTM, st.segment, st.loop, tr, now); err != nil {
		return err
	}
	d.gainSTM[st.segment] = slices.Clone(d.gainSTMPending)
	d.stmConfig[st.segment] = st.config

	return nil
}

func (d *Device) pulseWidthEncoder(buf []byte) error {
	wide := d.cfg.version.WidePulseWidth()
	want, entry := firmware.TagConfigPulseWidthEncoderV10, 1
	if wide {
		want, entry = firmware.TagConfigPulseWidthEncoderV11, 2
	}
	if buf[0] != want {
		return fmt.Errorf("%w: pulse width encoder 0x%02X on %s", firmware.ErrNotSupportedTag, buf[0], d.cfg.version)
	}
	if len(buf) < 2+operation.PulseWidthTableSize*entry {
		return link.ErrInvalidFrame
	}

	table := make([]uint16, operation.PulseWidthTableSize)
	for i := range table {
		if wide {
			table[i] = binary.LittleEndian.Uint16(buf[2+2*i:])
		} else {
			table[i] = uint16(buf[2+i])
		}
	}
	d.pulseWidth = table

	return nil
}

// emulateGPIOIn latches the input levels. A rising edge fires the pending
// GPIO transitions waiting on that pin.
func (d *Device) emulateGPIOIn(flag uint8) {
	for pin := range d.gpioIn {
		on := flag&(1<<pin) != 0
		if on && !d.gpioIn[pin] {
			for _, cat := range []segment.Category{segment.Modulation, segment.STM} {
				_, tr, ok := d.segments.Pending(cat)
				if ok && tr.Kind() == firmware.TransitionGPIO && tr.Value() == uint64(pin) {
					d.segments.Trigger(cat, firmware.TransitionGPIO)
				}
			}
		}
		d.gpioIn[pin] = on
	}
}

func (d *Device) setGPIOOutputs(buf []byte) error {
	const head = 8
	if len(buf) < head+8*firmware.NumGPIO {
		return link.ErrInvalidFrame
	}

	var outs [firmware.NumGPIO]firmware.GPIOOutput
	for i := range outs {
		outs[i] = firmware.DecodeGPIOOutput(binary.LittleEndian.Uint64(buf[head+8*i:]))
		if !d.cfg.version.SupportsGPIOOutput(outs[i].Type) {
			return fmt.Errorf("%w: GPIO output 0x%02X on %s", firmware.ErrNotSupportedTag, uint8(outs[i].Type), d.cfg.version)
		}
	}
	d.gpioOut = outs

	return nil
}

func (d *Device) setOutputMask(buf []byte) error {
	if !d.cfg.version.SupportsOutputMask() {
		return fmt.Errorf("%w: output mask on %s", firmware.ErrNotSupportedTag, d.cfg.version)
	}
	if len(buf) < 2+(d.numTrans+7)/8 {
		return link.ErrInvalidFrame
	}
	seg, err := parseSegment(buf[1])
	if err != nil {
		return err
	}
	mask := make([]bool, d.numTrans)
	for i := range mask {
		mask[i] = buf[2+i/8]&(1<<(i%8)) != 0
	}
	d.outputMask[seg] = mask

	return nil
}
