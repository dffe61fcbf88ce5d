package emulator

import (
	"slices"
	"sync"

	"github.com/arloliu/go-autd/firmware"
	"github.com/arloliu/go-autd/link"
	"github.com/arloliu/go-autd/operation"
	"github.com/arloliu/go-autd/segment"
)

// SilencerState is the silencer setting of a device.
type SilencerState struct {
	FixedUpdateRate bool
	Strict          bool
	Intensity       uint16
	Phase           uint16
}

func defaultSilencer() SilencerState {
	return SilencerState{Strict: true, Intensity: 10, Phase: 40}
}

// stream is the reassembly state of a multi-frame write.
type stream struct {
	active      bool
	segment     firmware.Segment
	transition  firmware.TransitionMode
	config      firmware.SamplingConfig
	loop        firmware.LoopBehavior
	numFoci     int
	gainSTMMode firmware.GainSTMMode
}

// Device is the emulated state of one device.
//
// All accessors return copies and are safe to call while the emulator is in use.
type Device struct {
	mu       sync.Mutex
	idx      int
	numTrans int
	cfg      *Config

	lastID    link.MsgID
	hasLast   bool
	ack       link.RxMessage
	processed int

	segments       *segment.Machine
	silencer       SilencerState
	synchronized   bool
	fanForced      bool
	readsFPGAState bool
	thermal        bool
	infoType       firmware.InfoType

	modBuf     [2][]uint8
	modConfig  [2]firmware.SamplingConfig
	modStream  stream
	modPending []uint8

	gains          [2][]firmware.Drive
	foci           [2][]operation.ControlPoints
	gainSTM        [2][][]firmware.Drive
	stmConfig      [2]firmware.SamplingConfig
	stmStream      stream
	fociPending    []operation.ControlPoints
	gainSTMPending [][]firmware.Drive

	phaseCorrection []uint8
	outputMask      [2][]bool
	pulseWidth      []uint16

	gpioIn  [firmware.NumGPIO]bool
	gpioOut [firmware.NumGPIO]firmware.GPIOOutput
	cpuGPIO firmware.CPUGPIOPort
}

func newDevice(idx, numTrans int, cfg *Config) *Device {
	d := &Device{idx: idx, numTrans: numTrans, cfg: cfg, segments: segment.New()}
	d.reset()

	return d
}

// reset restores the power-on state. The message id history is kept.
func (d *Device) reset() {
	d.segments.Reset()
	d.silencer = defaultSilencer()
	d.fanForced = false
	d.readsFPGAState = false
	d.infoType = 0
	for _, seg := range []firmware.Segment{firmware.S0, firmware.S1} {
		d.modBuf[seg] = []uint8{0xFF, 0xFF}
		d.modConfig[seg] = firmware.Freq4K
		d.gains[seg] = make([]firmware.Drive, d.numTrans)
		d.foci[seg] = nil
		d.gainSTM[seg] = nil
		d.stmConfig[seg] = firmware.Freq4K
		d.outputMask[seg] = allTrue(d.numTrans)
	}
	d.modStream, d.stmStream = stream{}, stream{}
	d.modPending, d.fociPending, d.gainSTMPending = nil, nil, nil
	d.phaseCorrection = make([]uint8, d.numTrans)
	d.pulseWidth = nil
	d.gpioIn = [firmware.NumGPIO]bool{}
	d.gpioOut = [firmware.NumGPIO]firmware.GPIOOutput{}
	d.cpuGPIO = firmware.CPUGPIOPort{}
}

func allTrue(n int) []bool {
	b := make([]bool, n)
	for i := range b {
		b[i] = true
	}

	return b
}

// process applies one frame and returns the resulting acknowledgment. A frame
// carrying the id of the previous frame is acknowledged again without being applied.
func (d *Device) process(tx *link.TxMessage, now uint64) link.RxMessage {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := tx.MsgID()
	if id > link.MaxMsgID {
		d.ack = link.AckError(d.dataByte(), firmware.CodeInvalidMessageID)
		return d.ack
	}
	if d.hasLast && id == d.lastID {
		return d.ack
	}
	d.lastID, d.hasLast = id, true
	d.processed++

	d.segments.Advance(now)
	payload := tx.Payload()
	err := d.processSlot(payload, now)
	if off := tx.Slot2Offset(); err == nil && off > 0 && off < len(payload) {
		err = d.processSlot(payload[off:], now)
	}

	if err != nil {
		code, ok := firmware.CodeOf(err)
		if !ok {
			code = firmware.CodeNotSupportedTag
		}
		d.cfg.logger.Warn("emulated device rejected frame", "device", d.idx, "msg_id", id, "error", err)
		d.ack = link.AckError(d.dataByte(), code)

		return d.ack
	}
	d.ack = link.AckMsgID(d.dataByte(), id)

	return d.ack
}

func (d *Device) dataByte() uint8 {
	v := d.cfg.version
	switch d.infoType {
	case firmware.InfoCPUMajor, firmware.InfoFPGAMajor:
		return v.CPUMajor()
	case firmware.InfoCPUMinor, firmware.InfoFPGAMinor:
		return d.cfg.cpuMinor
	case firmware.InfoFPGAFunctions:
		return d.cfg.functions
	}
	if !d.readsFPGAState {
		return 0
	}

	state := firmware.FPGAStateValid
	if d.thermal {
		state |= firmware.FPGAStateThermalAssert
	}
	if d.segments.Active(segment.Modulation) == firmware.S1 {
		state |= firmware.FPGAStateModSegment
	}
	if d.segments.Active(segment.STM) == firmware.S1 {
		state |= firmware.FPGAStateSTMSegment
	}
	if d.segments.ActiveMode(segment.STM) == segment.ModeGain {
		state |= firmware.FPGAStateGainMode
	}

	return state
}

// Idx returns the device index.
func (d *Device) Idx() int { return d.idx }

// LastMsgID returns the id of the last processed frame, and false if none was processed.
func (d *Device) LastMsgID() (link.MsgID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.lastID, d.hasLast
}

// FramesProcessed returns the number of distinct frames applied.
func (d *Device) FramesProcessed() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.processed
}

// ActiveSegment returns the segment driving the output of cat.
func (d *Device) ActiveSegment(cat segment.Category) firmware.Segment {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.segments.Active(cat)
}

// SegmentMode returns the kind of data held by a bank.
func (d *Device) SegmentMode(cat segment.Category, seg firmware.Segment) segment.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.segments.Mode(cat, seg)
}

// Loop returns the loop behavior of a bank.
func (d *Device) Loop(cat segment.Category, seg firmware.Segment) firmware.LoopBehavior {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.segments.Loop(cat, seg)
}

// Modulation returns the modulation buffer and sampling configuration of seg.
func (d *Device) Modulation(seg firmware.Segment) ([]uint8, firmware.SamplingConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return slices.Clone(d.modBuf[seg]), d.modConfig[seg]
}

// Gain returns the drives of gain segment seg.
func (d *Device) Gain(seg firmware.Segment) []firmware.Drive {
	d.mu.Lock()
	defer d.mu.Unlock()

	return slices.Clone(d.gains[seg])
}

// FociSTM returns the points of FociSTM segment seg in device-local coordinates.
func (d *Device) FociSTM(seg firmware.Segment) ([]operation.ControlPoints, firmware.SamplingConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return slices.Clone(d.foci[seg]), d.stmConfig[seg]
}

// GainSTM returns the patterns of GainSTM segment seg.
func (d *Device) GainSTM(seg firmware.Segment) ([][]firmware.Drive, firmware.SamplingConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return slices.Clone(d.gainSTM[seg]), d.stmConfig[seg]
}

// Silencer returns the silencer setting.
func (d *Device) Silencer() SilencerState {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.silencer
}

// PhaseCorrection returns the per-transducer phase offsets.
func (d *Device) PhaseCorrection() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return slices.Clone(d.phaseCorrection)
}

// OutputMask returns the transducer output mask of STM segment seg.
func (d *Device) OutputMask(seg firmware.Segment) []bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return slices.Clone(d.outputMask[seg])
}

// PulseWidthTable returns the uploaded pulse width table, or nil for the built-in one.
func (d *Device) PulseWidthTable() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return slices.Clone(d.pulseWidth)
}

// Synchronized reports whether a Synchronize frame was processed.
func (d *Device) Synchronized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.synchronized
}

// FanForced reports whether the fan is forced on.
func (d *Device) FanForced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.fanForced
}

// SetThermalAssert sets the over-temperature signal reported in the FPGA state.
func (d *Device) SetThermalAssert(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.thermal = on
}

// GPIOIn returns the levels of the emulated GPIO inputs.
func (d *Device) GPIOIn() [firmware.NumGPIO]bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.gpioIn
}

// GPIOOutputs returns the signals routed to the FPGA debug outputs.
func (d *Device) GPIOOutputs() [firmware.NumGPIO]firmware.GPIOOutput {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.gpioOut
}

// CPUGPIOOutputs returns the levels of the CPU debug pins.
func (d *Device) CPUGPIOOutputs() firmware.CPUGPIOPort {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cpuGPIO
}

func (d *Device) trigger(cat segment.Category, kind firmware.TransitionKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.segments.Trigger(cat, kind)
}
