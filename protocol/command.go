package protocol

// CommandID identifies the payload semantics of a frame (little-endian
// on the wire).
type CommandID uint16

const (
	CommandRobotStatus  CommandID = 0x0201
	CommandRealtimeData CommandID = 0x0301
)

// CommandType is the closed set of semantic frame types.
type CommandType string

const (
	TypeRobotStatus  CommandType = "robot_status"
	TypeRealtimeData CommandType = "realtime_data"

	// TypeUnknown is the sentinel for command IDs outside the table.
	// Frames carrying unknown IDs are still emitted, never dropped.
	TypeUnknown CommandType = "unknown"
)

var commandTypes = map[CommandID]CommandType{
	CommandRobotStatus:  TypeRobotStatus,
	CommandRealtimeData: TypeRealtimeData,
}

// Type returns the semantic type for the command ID.
func (id CommandID) Type() CommandType {
	if t, ok := commandTypes[id]; ok {
		return t
	}
	return TypeUnknown
}
