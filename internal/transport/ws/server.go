// Package ws serves the viewer link. A connection says HELLO, becomes a
// root presence in the named region and then exchanges currency messages.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/protocol"
	"gridbank.ai/internal/region"
)

// Host is the part of a region the link drives. *region.Scene implements
// it.
type Host interface {
	region.Region
	AddClient(ctx context.Context, c region.Client, pos region.Vec3) error
	MakeRoot(ctx context.Context, agent uuid.UUID) error
	RemoveClient(ctx context.Context, c region.Client)
	Move(agent uuid.UUID, pos region.Vec3) error
	BuyLand(ctx context.Context, agent uuid.UUID, localID int, price int64) (region.LandBuy, error)
}

type Stats struct {
	Connected atomic.Int64
	Dropped   atomic.Int64
	Rejected  atomic.Int64
}

type Server struct {
	regions *region.Registry
	log     *zap.Logger
	stats   Stats

	upgrader websocket.Upgrader
}

func NewServer(regions *region.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		regions: regions,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Stats() *Stats { return &s.stats }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		host, c := s.handshake(ws)
		if c == nil {
			s.stats.Rejected.Add(1)
			return
		}
		s.stats.Connected.Add(1)
		defer s.stats.Connected.Add(-1)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for b := range c.out {
				_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					_ = ws.Close()
					return
				}
			}
		}()

		if err := host.AddClient(ctx, c, c.start); err != nil {
			s.stats.Rejected.Add(1)
			s.log.Info("client rejected", zap.Stringer("agent", c.agent), zap.String("region", host.ID()), zap.Error(err))
			c.sendError(protocol.ErrSessionTaken, "agent already connected to "+host.ID())
			c.close()
			<-writerDone
			closeWith(ws, protocol.ErrSessionTaken)
			return
		}
		c.send(protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			AgentID:         c.agent.String(),
			SessionID:       c.session.String(),
			RegionID:        host.ID(),
		})
		s.log.Info("client connected", zap.Stringer("agent", c.agent), zap.String("region", host.ID()))
		if err := host.MakeRoot(ctx, c.agent); err != nil {
			s.log.Warn("make root failed", zap.Stringer("agent", c.agent), zap.Error(err))
		}

		for ctx.Err() == nil {
			_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := ws.ReadMessage()
			if err != nil {
				break
			}
			s.dispatch(ctx, host, c, msg)
		}

		host.RemoveClient(context.Background(), c)
		c.close()
		<-writerDone
	}
}

func (s *Server) handshake(ws *websocket.Conn) (Host, *conn) {
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(ws, "expected HELLO")
		return nil, nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(ws, "bad HELLO")
		return nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(ws, "bad protocol_version")
		return nil, nil
	}
	agent, err := uuid.Parse(hello.AgentID)
	if err != nil || agent == uuid.Nil {
		s.reject(ws, protocol.ErrProtoBadRequest, "agent_id must be a uuid")
		return nil, nil
	}
	session := uuid.New()
	if hello.SessionID != "" {
		if session, err = uuid.Parse(hello.SessionID); err != nil {
			s.reject(ws, protocol.ErrProtoBadRequest, "session_id must be a uuid")
			return nil, nil
		}
	}
	host, ok := s.regions.Region(hello.RegionID).(Host)
	if !ok {
		s.reject(ws, protocol.ErrRegionNotFound, hello.RegionID)
		return nil, nil
	}

	queue := hello.MaxQueue
	if queue <= 0 {
		queue = 16
	}
	if queue > 128 {
		queue = 128
	}
	c := newConn(agent, session, queue, &s.stats.Dropped)
	c.start = region.Vec3{X: hello.Pos[0], Y: hello.Pos[1], Z: hello.Pos[2]}

	return host, c
}

func (s *Server) dispatch(ctx context.Context, host Host, c *conn, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		c.sendError(protocol.ErrProtoBadRequest, "undecodable message")
		return
	}
	if base.ProtocolVersion != protocol.Version {
		c.sendError(protocol.ErrProtoBadRequest, "bad protocol_version")
		return
	}

	switch base.Type {
	case protocol.TypeMoneyBalanceRequest:
		var m protocol.MoneyBalanceRequestMsg
		if json.Unmarshal(msg, &m) != nil {
			c.sendError(protocol.ErrBadRequest, base.Type)
			return
		}
		agent, _ := uuid.Parse(m.AgentID)
		session, _ := uuid.Parse(m.SessionID)
		txID, _ := uuid.Parse(m.TransactionID)
		c.RequestBalance(ctx, c, agent, session, txID)

	case protocol.TypeMoneyTransferRequest:
		var m protocol.MoneyTransferRequestMsg
		if json.Unmarshal(msg, &m) != nil {
			c.sendError(protocol.ErrBadRequest, base.Type)
			return
		}
		target, err := uuid.Parse(m.TargetID)
		if err != nil {
			c.sendError(protocol.ErrInvalidTarget, m.TargetID)
			return
		}
		c.RequestMoneyTransfer(ctx, c, region.MoneyTransfer{
			SourceID:    c.agent,
			TargetID:    target,
			Amount:      m.Amount,
			Kind:        currency.Kind(m.Kind),
			Description: m.Description,
		})

	case protocol.TypeEconomyDataRequest:
		c.RequestEconomyData(ctx, c)

	case protocol.TypeBuyLand:
		var m protocol.BuyLandMsg
		if json.Unmarshal(msg, &m) != nil {
			c.sendError(protocol.ErrBadRequest, base.Type)
			return
		}
		s.buyLand(ctx, host, c, m)

	case protocol.TypeMove:
		var m protocol.MoveMsg
		if json.Unmarshal(msg, &m) != nil {
			c.sendError(protocol.ErrBadRequest, base.Type)
			return
		}
		_ = host.Move(c.agent, region.Vec3{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]})

	default:
		c.sendError(protocol.ErrProtoBadRequest, "unknown type "+base.Type)
	}
}

func (s *Server) buyLand(ctx context.Context, host Host, c *conn, m protocol.BuyLandMsg) {
	res := protocol.LandBuyResultMsg{
		Type:            protocol.TypeLandBuyResult,
		ProtocolVersion: protocol.Version,
		ParcelLocalID:   m.ParcelLocalID,
	}
	ev, err := host.BuyLand(ctx, c.agent, m.ParcelLocalID, m.Price)
	switch {
	case errors.Is(err, region.ErrUnknownParcel):
		res.Code = protocol.ErrNoParcel
	case errors.Is(err, region.ErrParcelChanged):
		res.Code = protocol.ErrParcelChanged
		res.SellerID = ev.ParcelOwnerID.String()
	case err != nil:
		res.Code = protocol.ErrInternal
	case !ev.Validated:
		res.Code = protocol.ErrLandNotForSale
	default:
		res.Validated = true
		res.SellerID = ev.ParcelOwnerID.String()
	}
	c.send(res)
}

func (s *Server) reject(ws *websocket.Conn, code, msg string) {
	_ = writeJSON(ws, protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: msg})
	closeWith(ws, code)
}

func closeWith(ws *websocket.Conn, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(ws *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, b)
}
