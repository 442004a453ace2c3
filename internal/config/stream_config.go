package config

import "time"

// StreamConfig bounds client-side generation streams. It is read by genctl,
// not by the gateway.
type StreamConfig interface {
	GetFirstFrameTimeout() time.Duration
	GetIdleTimeout() time.Duration
}

type Stream struct{}

var _ StreamConfig = Stream{}

func (Stream) GetFirstFrameTimeout() time.Duration {
	return GetEnvDuration("STREAM_FIRST_FRAME_TIMEOUT", 90*time.Second)
}

func (Stream) GetIdleTimeout() time.Duration {
	return GetEnvDuration("STREAM_IDLE_TIMEOUT", 120*time.Second)
}
