package eventmodel

// Session is a single continuous connection from one instrumented
// application to the collector.
type Session struct {
	SessionID      string     `json:"sessionId"`
	AppName        string     `json:"appName"`
	Project        string     `json:"project"`
	SDKVersion     string     `json:"sdkVersion"`
	ConnectedAt    int64      `json:"connectedAt"`
	DisconnectedAt *int64     `json:"disconnectedAt,omitempty"`
	EventCount     int64      `json:"eventCount"`
	IsConnected    bool       `json:"isConnected"`
	BuildMeta      *BuildMeta `json:"buildMeta,omitempty"`
}

// SessionInfo is the summary shape returned by session listings.
type SessionInfo struct {
	SessionID   string `json:"sessionId"`
	AppName     string `json:"appName"`
	ConnectedAt int64  `json:"connectedAt"`
	SDKVersion  string `json:"sdkVersion"`
	EventCount  int64  `json:"eventCount"`
	IsConnected bool   `json:"isConnected"`
}

// ProjectInfo is the summary shape returned by project listings.
type ProjectInfo struct {
	AppName     string   `json:"appName"`
	Sessions    []string `json:"sessions"`
	IsConnected bool     `json:"isConnected"`
	EventCount  int64    `json:"eventCount"`
	LastSeenAt  int64    `json:"lastSeenAt,omitempty"`
}

// PendingCommand is an in-flight command dispatched to a specific client,
// awaiting a matching command_response frame.
type PendingCommand struct {
	RequestID string
	SessionID string
	Command   string
}
