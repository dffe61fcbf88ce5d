package sender

import "sync/atomic"

// Metrics contains atomic counters of a Sender.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// SendCount indicates the number of Send calls that reached the link.
	SendCount atomic.Uint64
	// RoundCount indicates the number of frame sets packed and transmitted.
	RoundCount atomic.Uint64
	// FrameCount indicates the number of frames carrying a payload.
	FrameCount atomic.Uint64
	// RetransmitCount indicates the number of frame sets sent again under the same message id.
	RetransmitCount atomic.Uint64
	// TimeoutCount indicates the number of rounds that were not acknowledged in time.
	TimeoutCount atomic.Uint64
	// FirmwareErrCount indicates the number of sends aborted by a firmware error.
	FirmwareErrCount atomic.Uint64
}

func (m *Metrics) incSendCount() {
	m.SendCount.Add(1)
}

func (m *Metrics) incRoundCount() {
	m.RoundCount.Add(1)
}

func (m *Metrics) addFrameCount(n int) {
	m.FrameCount.Add(uint64(n)) //nolint:gosec // n is a device count
}

func (m *Metrics) incRetransmitCount() {
	m.RetransmitCount.Add(1)
}

func (m *Metrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *Metrics) incFirmwareErrCount() {
	m.FirmwareErrCount.Add(1)
}
