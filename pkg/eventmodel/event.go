// Package eventmodel defines the wire and storage representation of
// runtime-telemetry events, sessions, projects, and their roll-ups.
package eventmodel

import "encoding/json"

// Kind discriminates the tagged-variant body carried by an Event.
type Kind string

const (
	KindNetwork     Kind = "network"
	KindConsole     Kind = "console"
	KindSession     Kind = "session"
	KindState       Kind = "state"
	KindRender      Kind = "render"
	KindDOMSnapshot Kind = "dom_snapshot"
	KindPerformance Kind = "performance"
	KindDatabase    Kind = "database"
)

// Event is the fundamental immutable record. The shared header fields are
// always present; Data carries the kind-specific body verbatim so that
// unknown fields round-trip untouched and unknown kinds are stored opaquely.
type Event struct {
	EventID   string          `json:"eventId"`
	SessionID string          `json:"sessionId"`
	Timestamp int64           `json:"timestamp"`
	Kind      Kind            `json:"kind"`
	Data      json.RawMessage `json:"data"`
}

// NetworkBody is the kind-specific payload for KindNetwork events.
type NetworkBody struct {
	URL              string            `json:"url"`
	Method           string            `json:"method"`
	Status           int               `json:"status"`
	RequestHeaders   map[string]string `json:"requestHeaders,omitempty"`
	ResponseHeaders  map[string]string `json:"responseHeaders,omitempty"`
	RequestBodySize  int64             `json:"requestBodySize,omitempty"`
	ResponseBodySize int64             `json:"responseBodySize,omitempty"`
	Duration         float64           `json:"duration"`
	TTFB             float64           `json:"ttfb"`
	GraphQLOperation string            `json:"graphqlOperation,omitempty"`
	RequestBody      string            `json:"requestBody,omitempty"`
	ResponseBody     string            `json:"responseBody,omitempty"`
	ErrorPhase       string            `json:"errorPhase,omitempty"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	Source           string            `json:"source,omitempty"`
}

// ConsoleBody is the kind-specific payload for KindConsole events.
type ConsoleBody struct {
	Level      string        `json:"level"`
	Message    string        `json:"message"`
	Args       []interface{} `json:"args,omitempty"`
	StackTrace string        `json:"stackTrace,omitempty"`
	SourceFile string        `json:"sourceFile,omitempty"`
}

// SessionBody is the kind-specific payload for the synthetic KindSession
// event emitted when a handshake is accepted.
type SessionBody struct {
	AppName     string     `json:"appName"`
	ConnectedAt int64      `json:"connectedAt"`
	SDKVersion  string     `json:"sdkVersion"`
	BuildMeta   *BuildMeta `json:"buildMeta,omitempty"`
}

// StateBody is the kind-specific payload for KindState events.
type StateBody struct {
	StoreID       string      `json:"storeId"`
	Library       string      `json:"library"`
	Phase         string      `json:"phase"` // "init" | "update"
	State         interface{} `json:"state"`
	PreviousState interface{} `json:"previousState,omitempty"`
	Diff          interface{} `json:"diff,omitempty"`
	Action        string      `json:"action,omitempty"`
	StackTrace    string      `json:"stackTrace,omitempty"`
}

// RenderBody is the kind-specific payload for KindRender events.
type RenderBody struct {
	Profiles             []RenderProfile `json:"profiles"`
	SnapshotWindowMs     int64           `json:"snapshotWindowMs"`
	TotalRenders         int             `json:"totalRenders"`
	SuspiciousComponents []string        `json:"suspiciousComponents,omitempty"`
}

// RenderProfile is a single component's render measurement within a RenderBody.
type RenderProfile struct {
	ComponentName string  `json:"componentName"`
	Duration      float64 `json:"duration"`
}

// DOMSnapshotBody is the kind-specific payload for KindDOMSnapshot events.
type DOMSnapshotBody struct {
	HTML           string `json:"html"`
	URL            string `json:"url"`
	Viewport       string `json:"viewport,omitempty"`
	ScrollPosition string `json:"scrollPosition,omitempty"`
	ElementCount   int    `json:"elementCount"`
	Truncated      bool   `json:"truncated"`
}

// PerformanceBody is the kind-specific payload for KindPerformance events.
type PerformanceBody struct {
	MetricName string      `json:"metricName"`
	Value      float64     `json:"value"`
	Rating     string      `json:"rating"` // "good" | "needs-improvement" | "poor"
	Element    string      `json:"element,omitempty"`
	Entries    interface{} `json:"entries,omitempty"`
}

// DatabaseBody is the kind-specific payload for KindDatabase events.
type DatabaseBody struct {
	Query           string      `json:"query"`
	NormalizedQuery string      `json:"normalizedQuery"`
	Duration        float64     `json:"duration"`
	RowsReturned    *int64      `json:"rowsReturned,omitempty"`
	RowsAffected    *int64      `json:"rowsAffected,omitempty"`
	TablesAccessed  []string    `json:"tablesAccessed,omitempty"`
	Operation       string      `json:"operation"` // SELECT|INSERT|UPDATE|DELETE|OTHER
	Source          string      `json:"source"`    // prisma|drizzle|knex|pg|mysql2|better-sqlite3|generic
	StackTrace      string      `json:"stackTrace,omitempty"`
	Label           string      `json:"label,omitempty"`
	Error           string      `json:"error,omitempty"`
	Params          interface{} `json:"params,omitempty"`
}

// BuildMeta carries optional provenance about the build that produced a session.
type BuildMeta struct {
	GitCommit string `json:"gitCommit,omitempty"`
	GitBranch string `json:"gitBranch,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
	DeployID  string `json:"deployId,omitempty"`
}

// DecodeNetwork unmarshals e.Data into a NetworkBody. Callers should check
// e.Kind == KindNetwork first; this does not validate the kind.
func (e *Event) DecodeNetwork() (NetworkBody, error) {
	var b NetworkBody
	err := json.Unmarshal(e.Data, &b)
	return b, err
}

// DecodeSession unmarshals e.Data into a SessionBody.
func (e *Event) DecodeSession() (SessionBody, error) {
	var b SessionBody
	err := json.Unmarshal(e.Data, &b)
	return b, err
}

// DecodeConsole unmarshals e.Data into a ConsoleBody.
func (e *Event) DecodeConsole() (ConsoleBody, error) {
	var b ConsoleBody
	err := json.Unmarshal(e.Data, &b)
	return b, err
}

// DecodeState unmarshals e.Data into a StateBody.
func (e *Event) DecodeState() (StateBody, error) {
	var b StateBody
	err := json.Unmarshal(e.Data, &b)
	return b, err
}

// DecodeRender unmarshals e.Data into a RenderBody.
func (e *Event) DecodeRender() (RenderBody, error) {
	var b RenderBody
	err := json.Unmarshal(e.Data, &b)
	return b, err
}

// DecodeDOMSnapshot unmarshals e.Data into a DOMSnapshotBody.
func (e *Event) DecodeDOMSnapshot() (DOMSnapshotBody, error) {
	var b DOMSnapshotBody
	err := json.Unmarshal(e.Data, &b)
	return b, err
}

// DecodePerformance unmarshals e.Data into a PerformanceBody.
func (e *Event) DecodePerformance() (PerformanceBody, error) {
	var b PerformanceBody
	err := json.Unmarshal(e.Data, &b)
	return b, err
}

// DecodeDatabase unmarshals e.Data into a DatabaseBody.
func (e *Event) DecodeDatabase() (DatabaseBody, error) {
	var b DatabaseBody
	err := json.Unmarshal(e.Data, &b)
	return b, err
}
