// Package live2d provides the message channel between the companion core
// and the embedded Live2D web renderer. The renderer may not be loaded yet
// when commands arrive, so the bridge queues them until the renderer
// signals readiness.
package live2d

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Command types sent to the renderer.
const (
	CmdPlayMotion         = "playMotion"
	CmdGetAvailableMotion = "getAvailableMotions"
	CmdCheckModelStatus   = "checkModelStatus"
)

// Inbound message types posted by the renderer. Unknown types are logged
// and ignored, never fatal.
const (
	MsgWebViewReady     = "webViewReady"
	MsgDOMReady         = "domReady"
	MsgReadinessUpdate  = "readinessUpdate"
	MsgModelReady       = "modelReady"
	MsgHeartbeat        = "heartbeat"
	MsgUserInteraction  = "userInteraction"
	MsgInitError        = "initError"
	MsgModelStatus      = "modelStatus" // legacy, ignored by the new flow
	MsgBridgeStatus     = "bridgeStatus"
	MsgMotionResult     = "motionResult"
	MsgAvailableMotions = "availableMotions"
	MsgCleanup          = "cleanup"
	MsgError            = "error"
)

// Command is a controller-to-renderer message.
type Command struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// NewCommand creates a command stamped with an ID and the current time.
func NewCommand(cmdType string, data map[string]any) Command {
	return Command{
		ID:        uuid.NewString(),
		Type:      cmdType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// PlayMotionCommand builds the playMotion command for a motion name.
func PlayMotionCommand(name string) Command {
	return NewCommand(CmdPlayMotion, map[string]any{"motion": name})
}

// InboundMessage is a renderer-to-controller message. Data stays raw until
// the type is known; a shape mismatch inside Data is reported through the
// bridge error channel rather than raised.
type InboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// MotionResult is produced exactly once per accepted motion command.
type MotionResult struct {
	Motion    string `json:"motion"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// readinessUpdateData is the payload of a readinessUpdate message.
type readinessUpdateData struct {
	State string `json:"state"`
}

// initErrorData is the payload of an initError message.
type initErrorData struct {
	Error string `json:"error"`
}

// bridgeStatusData is the payload of a bridgeStatus message.
type bridgeStatusData struct {
	Available bool `json:"available"`
}

// availableMotionsData is the payload of an availableMotions message.
type availableMotionsData struct {
	Motions []string `json:"motions"`
}

// errorData is the payload of an error message.
type errorData struct {
	Error string `json:"error"`
}
