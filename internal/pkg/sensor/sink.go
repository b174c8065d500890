package sensor

// Sink is the delivery target of a stream, opaque beyond accepting samples and errors.
type Sink interface {
	Success(sample Sample)
	Error(err *StreamError)
}

// StreamHandler is installed by the Registry for every stream identifier.
type StreamHandler interface {
	OnListen(sink Sink)
	OnCancel()
}

// Messenger is the host side of the interop boundary. A nil handler removes the stream.
type Messenger interface {
	SetStreamHandler(streamID string, handler StreamHandler)
}

// SinkFuncs adapts plain functions into a Sink, nil functions drop the event.
type SinkFuncs struct {
	OnSample func(sample Sample)
	OnError  func(err *StreamError)
}

func (s SinkFuncs) Success(sample Sample) {
	if s.OnSample != nil {
		s.OnSample(sample)
	}
}

func (s SinkFuncs) Error(err *StreamError) {
	if s.OnError != nil {
		s.OnError(err)
	}
}

// StreamEvent carries either a sample or an error of one stream.
type StreamEvent struct {
	Kind   Kind
	Sample Sample
	Err    *StreamError
}

// ChannelSink marshals events onto a channel read by the host's own goroutine.
// Sends block, so the reader decides the delivery pace and order is preserved.
type ChannelSink struct {
	kind Kind
	out  chan<- StreamEvent
	done <-chan struct{}
}

func NewChannelSink(kind Kind, out chan<- StreamEvent) ChannelSink {
	return ChannelSink{kind: kind, out: out}
}

// WithDone returns a copy of the sink dropping events once done is closed,
// the host stops reading before its streams are detached.
func (s ChannelSink) WithDone(done <-chan struct{}) ChannelSink {
	s.done = done
	return s
}

func (s ChannelSink) send(ev StreamEvent) {
	select {
	case s.out <- ev:
	case <-s.done:
	}
}

func (s ChannelSink) Success(sample Sample) {
	s.send(StreamEvent{Kind: s.kind, Sample: sample})
}

func (s ChannelSink) Error(err *StreamError) {
	s.send(StreamEvent{Kind: s.kind, Err: err})
}
