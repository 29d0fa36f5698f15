package domain

import "errors"

// Domain errors returned by the session manager. Handlers translate
// them to HTTP statuses; they are never wrapped in panics.
var (
	ErrUnknownCharger     = errors.New("unknown charger")
	ErrInvalidConnector   = errors.New("connector id out of range")
	ErrConnectorOccupied  = errors.New("connector already occupied")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidPowerUpdate = errors.New("invalid power update")
	ErrSessionIDCollision = errors.New("session id collision")
)
