package node

import (
	"context"

	"github.com/dockhand/dockhand/pkg/protocol"
)

// handleCommand executes one coordinator command against the engine and
// builds the reply envelope. List commands degrade to an empty list on
// engine failure; per-container commands report the failure as a
// correlated error so the caller sees what went wrong.
func handleCommand(ctx context.Context, engine Engine, cmd *protocol.NodeCommand) *protocol.Envelope {
	switch {
	case cmd.GetNodeContainers != nil:
		key := protocol.ValueKey(protocol.RequestGetContainers, cmd.GetNodeContainers.RequestID)
		containers, err := engine.ListContainers(ctx)
		if err != nil || containers == nil {
			containers = []string{}
		}
		return protocol.ResponseEnvelope(&protocol.NodeResponse{
			NodeContainers: &protocol.NodeContainers{Containers: containers, RequestKey: key},
		})

	case cmd.GetNodeContainersWithStatus != nil:
		key := protocol.ValueKey(protocol.RequestGetContainersWithStatus, cmd.GetNodeContainersWithStatus.RequestID)
		statuses, err := engine.ListContainersWithStatus(ctx)
		if err != nil || statuses == nil {
			statuses = []protocol.ContainerStatus{}
		}
		return protocol.ResponseEnvelope(&protocol.NodeResponse{
			NodeContainersWithStatus: &protocol.NodeContainersWithStatus{Containers: statuses, RequestKey: key},
		})

	case cmd.GetContainerStatus != nil:
		req := cmd.GetContainerStatus
		key := protocol.ValueKey(protocol.RequestGetContainerStatus, req.RequestID)
		st, err := engine.ContainerStatus(ctx, req.ContainerID)
		if err != nil {
			return protocol.ErrorEnvelope(key, err.Error())
		}
		st.RequestKey = key
		return protocol.ResponseEnvelope(&protocol.NodeResponse{ContainerStatus: &st})

	case cmd.StartContainer != nil:
		req := cmd.StartContainer
		key := protocol.ValueKey(protocol.RequestStartContainer, req.RequestID)
		if err := engine.StartContainer(ctx, req.ContainerID); err != nil {
			return protocol.ErrorEnvelope(key, err.Error())
		}
		return actionReply(key, req.ContainerID, "start", "Container started successfully")

	case cmd.StopContainer != nil:
		req := cmd.StopContainer
		key := protocol.ValueKey(protocol.RequestStopContainer, req.RequestID)
		if err := engine.StopContainer(ctx, req.ContainerID); err != nil {
			return protocol.ErrorEnvelope(key, err.Error())
		}
		return actionReply(key, req.ContainerID, "stop", "Container stopped successfully")

	case cmd.DeleteContainer != nil:
		req := cmd.DeleteContainer
		key := protocol.ValueKey(protocol.RequestDeleteContainer, req.RequestID)
		if err := engine.DeleteContainer(ctx, req.ContainerID); err != nil {
			return protocol.ErrorEnvelope(key, err.Error())
		}
		return actionReply(key, req.ContainerID, "delete", "Container deleted successfully")

	case cmd.GetContainerLogs != nil:
		req := cmd.GetContainerLogs
		key := protocol.ValueKey(protocol.RequestGetContainerLogs, req.RequestID)
		lines, err := engine.ContainerLogs(ctx, req.ContainerID, req.Tail, req.Follow, req.Since)
		if err != nil {
			return protocol.ErrorEnvelope(key, err.Error())
		}
		if lines == nil {
			lines = []string{}
		}
		return protocol.ResponseEnvelope(&protocol.NodeResponse{
			ContainerLogs: &protocol.ContainerLogs{
				ContainerID: req.ContainerID,
				Logs:        lines,
				RequestKey:  key,
			},
		})
	}
	return nil
}

func actionReply(key *protocol.RequestKey, containerID, action, message string) *protocol.Envelope {
	return protocol.ResponseEnvelope(&protocol.NodeResponse{
		ContainerAction: &protocol.ContainerAction{
			ContainerID: containerID,
			Action:      action,
			Message:     message,
			RequestKey:  key,
		},
	})
}
