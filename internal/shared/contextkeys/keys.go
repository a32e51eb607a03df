package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "role-reactor context key " + string(c)
}

// GuildIDKey is the key for the guild a command runs in.
const GuildIDKey = contextKey("guildID")

// UserIDKey is the key for the invoking user.
const UserIDKey = contextKey("userID")

// CommandKey is the key for the command name being handled.
const CommandKey = contextKey("command")

// RequestIDKey is the key for the interaction/request ID.
const RequestIDKey = contextKey("requestID")

// ComponentKey is the key for the component emitting a log line.
const ComponentKey = contextKey("component")

// OperationKey is the key for the storage operation in progress.
const OperationKey = contextKey("operation")
