package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock of Logger for tests that assert on what the
// sender, controller and links report.
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// NewPermissiveMockLogger returns a MockLogger that accepts every call, so
// tests only assert the calls they care about. With returns the mock itself.
func NewPermissiveMockLogger() *MockLogger {
	m := &MockLogger{}
	for _, method := range []string{"Debug", "Info", "Warn", "Error", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Maybe()
	}
	m.On("With", mock.Anything).Return(m).Maybe()
	m.On("SetLevel", mock.Anything).Maybe()
	m.On("Level").Return(DebugLevel).Maybe()

	return m
}

// Messages returns the messages logged through method, in call order.
// Call it only after the code under test has stopped logging.
func (m *MockLogger) Messages(method string) []string {
	var msgs []string
	for _, c := range m.Calls {
		if c.Method != method || len(c.Arguments) == 0 {
			continue
		}
		if msg, ok := c.Arguments[0].(string); ok {
			msgs = append(msgs, msg)
		}
	}

	return msgs
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }

func (m *MockLogger) Info(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }

func (m *MockLogger) Warn(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }

func (m *MockLogger) Error(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) { m.Called(msg, keysAndValues) }

func (m *MockLogger) SetLevel(level Level) { m.Called(level) }

func (m *MockLogger) Level() Level {
	return m.Called().Get(0).(Level)
}

func (m *MockLogger) With(keyValues ...any) Logger {
	return m.Called(keyValues).Get(0).(Logger)
}
