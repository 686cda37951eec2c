package acquisition

import "sync"

// fakeTransport is an in-memory Transport double: BeginReading/StopReading
// just flip a flag, and every write made through SetConfigurationSetting is
// recorded for inspection instead of going anywhere.
type fakeTransport struct {
	mu sync.Mutex

	onData  func([]byte)
	onError func(code int, message string)

	reading bool
	sent    [][]byte

	// writeErr, if set, is returned by SetConfigurationSetting/
	// GetConfigurationSetting instead of recording the write.
	writeErr error

	// writeHook, if set, runs synchronously inside SetConfigurationSetting
	// before anything else, letting a test synthesize a device response to
	// its own outbound request.
	writeHook func(data []byte)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) SetDataReadyCallback(fn func(data []byte)) { t.onData = fn }
func (t *fakeTransport) SetErrorCallback(fn func(code int, message string)) { t.onError = fn }

func (t *fakeTransport) BeginReading() error {
	t.mu.Lock()
	t.reading = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) StopReading() {
	t.mu.Lock()
	t.reading = false
	t.mu.Unlock()
}

func (t *fakeTransport) SetConfigurationSetting(data []byte) error {
	if t.writeHook != nil {
		t.writeHook(data)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	cp := append([]byte{}, data...)
	t.sent = append(t.sent, cp)
	return nil
}

func (t *fakeTransport) GetConfigurationSetting(data []byte) error {
	return t.SetConfigurationSetting(data)
}

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) isReading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reading
}

func (t *fakeTransport) lastSent() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sent) == 0 {
		return nil
	}
	return t.sent[len(t.sent)-1]
}

func (t *fakeTransport) deliver(data []byte) {
	t.onData(data)
}

// recordingSink captures every event delivered to it, guarded by a mutex
// since it may be invoked from the worker goroutine while a test goroutine
// reads it back.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Deliver(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
