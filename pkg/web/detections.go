package web

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-rover/pkg/protocol"
)

// detectionsWS returns the handler for producers pushing Detection2DArray
// batches wrapped in protocol messages. Each batch is decided on and
// transmitted before the next frame is read.
func (s *Server) detectionsWS() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		remote := c.RemoteAddr().String()
		s.logger.Info("detection producer connected", "remote", remote)
		defer s.logger.Info("detection producer disconnected", "remote", remote)

		for {
			mt, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.TextMessage {
				continue
			}

			msg, err := protocol.ParseMessage(data)
			if err != nil {
				s.logger.Warn("bad detection frame", "error", err)
				continue
			}

			switch msg.Type {
			case protocol.TypeDetections:
				if _, err := s.opts.Detections.HandleMessage(s.ctx, msg.Data); err != nil {
					s.logger.Warn("detection batch failed", "error", err)
				}
			case protocol.TypePing:
				var ping protocol.PingData
				_ = msg.ParseData(&ping)
				pong, err := protocol.NewMessage(protocol.TypePong, protocol.PongData{Seq: ping.Seq})
				if err != nil {
					continue
				}
				out, err := pong.Bytes()
				if err != nil {
					continue
				}
				if err := c.WriteMessage(websocket.TextMessage, out); err != nil {
					return
				}
			default:
				s.logger.Debug("ignoring message", "type", msg.Type)
			}
		}
	})
}
