package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tether/internal/link"
	"tether/pkg/protocol"
)

// handshake runs once per new connection, before it is published. It
// identifies the client, installs the session snapshot, and settles the
// editor-readiness race.
func (c *Client) handshake(ctx context.Context, conn *link.Conn) error {
	var res protocol.HelloResult
	err := conn.Call(ctx, protocol.MethodHello, protocol.HelloParams{
		Client:          "shell",
		ProtocolVersion: protocol.Version,
		AppVersion:      c.appVersion,
		InstanceID:      c.instanceID,
	}, &res)
	if err != nil {
		return fmt.Errorf("hello failed: %w", err)
	}

	if res.ProtocolVersion != "" && res.ProtocolVersion != protocol.Version {
		c.log.Warn("protocol version mismatch",
			zap.String("ours", protocol.Version),
			zap.String("peer", res.ProtocolVersion))
	}

	c.registry.Bootstrap(res)
	c.setEditorState(res.EditorConnected, res.Project)

	// The editor may attach between our hello and the runtime's reply, in
	// which case the reply's readiness flag is already stale. A follow-up
	// probe gets the current answer; failure here is not fatal.
	var status protocol.StatusResult
	if err := conn.Call(ctx, protocol.MethodGetStatus, struct{}{}, &status); err != nil {
		c.log.Warn("post-handshake status probe failed", zap.Error(err))
	} else {
		c.setEditorState(status.EditorConnected, status.Project)
	}

	c.emitSessions()
	return nil
}
