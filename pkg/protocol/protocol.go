package protocol

// RequestType identifies the kind of user-initiated request a reply
// correlates to, or the kind of spontaneous update a node pushed.
type RequestType string

const (
	RequestGetContainers           RequestType = "get_containers"
	RequestGetContainersWithStatus RequestType = "get_containers_with_status"
	RequestGetContainerStatus      RequestType = "get_container_status"
	RequestStartContainer          RequestType = "start_container"
	RequestStopContainer           RequestType = "stop_container"
	RequestDeleteContainer         RequestType = "delete_container"
	RequestGetContainerLogs        RequestType = "get_container_logs"
	RequestUpdateContainerInfo     RequestType = "update_container_info"
)

// RequestKey correlates a node reply to an outstanding request.
// A key with a non-empty RequestID identifies a user-initiated request
// awaiting a reply. A key with Unspecific set marks a spontaneous update
// that must be broadcast, never correlated.
type RequestKey struct {
	RequestType RequestType `json:"request_type"`
	RequestID   string      `json:"request_id,omitempty"`
	Unspecific  bool        `json:"unspecific,omitempty"`
}

// ValueKey builds a key for a reply to the request with the given id.
func ValueKey(t RequestType, requestID string) *RequestKey {
	return &RequestKey{RequestType: t, RequestID: requestID}
}

// UnspecificKey builds a key for a spontaneous node-originated update.
func UnspecificKey(t RequestType) *RequestKey {
	return &RequestKey{RequestType: t, Unspecific: true}
}

// IsValue reports whether the key identifies a correlatable request.
func (k *RequestKey) IsValue() bool {
	return k != nil && !k.Unspecific && k.RequestID != ""
}

// Envelope is the single wire message carried in both directions on the
// node RPC stream. Exactly one payload field is set; envelopes carrying
// none are dropped by consumers.
type Envelope struct {
	ServerCommand  *ServerCommand  `json:"server_command,omitempty"`
	ServerResponse *ServerResponse `json:"server_response,omitempty"`
	NodeCommand    *NodeCommand    `json:"node_command,omitempty"`
	NodeResponse   *NodeResponse   `json:"node_response,omitempty"`
}

// HasPayload reports whether the envelope carries any payload at all.
func (e *Envelope) HasPayload() bool {
	if e == nil {
		return false
	}
	return e.ServerCommand != nil || e.ServerResponse != nil ||
		e.NodeCommand != nil || e.NodeResponse != nil
}

// ServerCommand is a node-to-coordinator control message.
type ServerCommand struct {
	AuthRequest     *AuthRequest     `json:"auth_request,omitempty"`
	GetServerStatus *GetServerStatus `json:"get_server_status,omitempty"`
}

// AuthRequest carries the node's credentials. The pair is both the
// authentication credential and the routing key.
type AuthRequest struct {
	NodeID   string `json:"node_id"`
	Password string `json:"password"`
}

type GetServerStatus struct{}

// ServerResponse is a coordinator-to-node control reply.
type ServerResponse struct {
	ServerStatus *ServerStatus `json:"server_status,omitempty"`
	AuthResponse *AuthResponse `json:"auth_response,omitempty"`
}

type ServerStatus struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

type AuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NodeCommand is a container lifecycle command routed to a node.
type NodeCommand struct {
	GetNodeContainers           *GetNodeContainers           `json:"get_node_containers,omitempty"`
	GetNodeContainersWithStatus *GetNodeContainersWithStatus `json:"get_node_containers_with_status,omitempty"`
	GetContainerStatus          *GetContainerStatus          `json:"get_container_status,omitempty"`
	StartContainer              *StartContainer              `json:"start_container,omitempty"`
	StopContainer               *StopContainer               `json:"stop_container,omitempty"`
	DeleteContainer             *DeleteContainer             `json:"delete_container,omitempty"`
	GetContainerLogs            *GetContainerLogs            `json:"get_container_logs,omitempty"`
}

type GetNodeContainers struct {
	RequestID string `json:"request_id"`
}

type GetNodeContainersWithStatus struct {
	RequestID string `json:"request_id"`
}

type GetContainerStatus struct {
	RequestID   string `json:"request_id"`
	ContainerID string `json:"container_id"`
}

type StartContainer struct {
	RequestID   string `json:"request_id"`
	ContainerID string `json:"container_id"`
}

type StopContainer struct {
	RequestID   string `json:"request_id"`
	ContainerID string `json:"container_id"`
}

type DeleteContainer struct {
	RequestID   string `json:"request_id"`
	ContainerID string `json:"container_id"`
}

type GetContainerLogs struct {
	RequestID   string `json:"request_id"`
	ContainerID string `json:"container_id"`
	Tail        int    `json:"tail"`
	Follow      bool   `json:"follow"`
	Since       string `json:"since"`
}

// NodeResponse is a typed reply or error from a node. Every variant
// carries a RequestKey; all are eligible for correlation.
type NodeResponse struct {
	NodeContainers           *NodeContainers           `json:"node_containers,omitempty"`
	NodeContainersWithStatus *NodeContainersWithStatus `json:"node_containers_with_status,omitempty"`
	ContainerStatus          *ContainerStatus          `json:"container_status,omitempty"`
	ContainerAction          *ContainerAction          `json:"container_action,omitempty"`
	ContainerLogs            *ContainerLogs            `json:"container_logs,omitempty"`
	Error                    *NodeError                `json:"error,omitempty"`
}

// Key returns the request key carried by whichever variant is set,
// or nil for an empty response.
func (r *NodeResponse) Key() *RequestKey {
	switch {
	case r == nil:
		return nil
	case r.NodeContainers != nil:
		return r.NodeContainers.RequestKey
	case r.NodeContainersWithStatus != nil:
		return r.NodeContainersWithStatus.RequestKey
	case r.ContainerStatus != nil:
		return r.ContainerStatus.RequestKey
	case r.ContainerAction != nil:
		return r.ContainerAction.RequestKey
	case r.ContainerLogs != nil:
		return r.ContainerLogs.RequestKey
	case r.Error != nil:
		return r.Error.RequestKey
	}
	return nil
}

type NodeContainers struct {
	Containers []string    `json:"containers"`
	RequestKey *RequestKey `json:"request_key,omitempty"`
}

type NodeContainersWithStatus struct {
	Containers []ContainerStatus `json:"containers"`
	RequestKey *RequestKey       `json:"request_key,omitempty"`
}

// ContainerStatus mirrors the engine's inspect result. Timestamps are
// unix seconds; zero when the engine reports none.
type ContainerStatus struct {
	ContainerID string      `json:"container_id"`
	Status      string      `json:"status"`
	Created     int64       `json:"created"`
	StartedAt   int64       `json:"started_at"`
	FinishedAt  int64       `json:"finished_at"`
	ExitCode    int64       `json:"exit_code"`
	RequestKey  *RequestKey `json:"request_key,omitempty"`
}

type ContainerAction struct {
	ContainerID string      `json:"container_id"`
	Action      string      `json:"action"`
	Message     string      `json:"message"`
	RequestKey  *RequestKey `json:"request_key,omitempty"`
}

type ContainerLogs struct {
	ContainerID string      `json:"container_id"`
	Logs        []string    `json:"logs"`
	RequestKey  *RequestKey `json:"request_key,omitempty"`
}

type NodeError struct {
	Message    string      `json:"message"`
	RequestKey *RequestKey `json:"request_key,omitempty"`
}

// AuthEnvelope builds the envelope a node sends first on a new stream.
func AuthEnvelope(nodeID, password string) *Envelope {
	return &Envelope{ServerCommand: &ServerCommand{
		AuthRequest: &AuthRequest{NodeID: nodeID, Password: password},
	}}
}

// ServerStatusEnvelope builds the coordinator's reply to GetServerStatus.
func ServerStatusEnvelope(status, uptime string) *Envelope {
	return &Envelope{ServerResponse: &ServerResponse{
		ServerStatus: &ServerStatus{Status: status, Uptime: uptime},
	}}
}

// CommandEnvelope wraps a node command for the wire.
func CommandEnvelope(cmd *NodeCommand) *Envelope {
	return &Envelope{NodeCommand: cmd}
}

// ResponseEnvelope wraps a node response for the wire.
func ResponseEnvelope(resp *NodeResponse) *Envelope {
	return &Envelope{NodeResponse: resp}
}

// ErrorEnvelope builds a node error reply correlated to the given key.
func ErrorEnvelope(key *RequestKey, message string) *Envelope {
	return ResponseEnvelope(&NodeResponse{
		Error: &NodeError{Message: message, RequestKey: key},
	})
}
