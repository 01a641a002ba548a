package httpserver

import "time"

// ShutdownTimeout bounds how long in-flight generations may run after a stop
// signal before the server closes their connections.
var ShutdownTimeout = 30 * time.Second
