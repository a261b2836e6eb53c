// internal/bridge/mqtt/errors.go
package mqtt

import "errors"

var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrTimeout          = errors.New("mqtt: operation timed out")

	// command routing
	ErrInvalidTopic   = errors.New("mqtt: invalid command topic")
	ErrUnknownDevice  = errors.New("mqtt: unknown device")
	ErrUnknownCommand = errors.New("mqtt: unknown command field")
	ErrInvalidPayload = errors.New("mqtt: invalid payload")
)
