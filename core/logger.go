package core

// Logger is any service that can report application events.
// args may carry errors, context maps (map[string]interface{}) or the authenticated identity.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
