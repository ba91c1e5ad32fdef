package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plasmarift/lobby-server/internal/core"
	"github.com/plasmarift/lobby-server/internal/proto"
)

// NewWSHandler upgrades client connections and bridges them to the Router.
func NewWSHandler(router *core.Router, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		serveClient(c.Writer, c.Request, router, logger)
	}
}

func serveClient(w stdhttp.ResponseWriter, r *stdhttp.Request, router *core.Router, logger *zerolog.Logger) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		logger.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(uuid.NewString())
	router.Attach(client)
	defer router.Detach(client.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- readLoop(ctx, conn, client, router, logger)
	}()
	go func() {
		errCh <- writeLoop(ctx, conn, client, logger)
	}()

	err = <-errCh
	cancel()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, router *core.Router, logger *zerolog.Logger) error {
	for {
		var inbound proto.Incoming
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}
		logger.Debug().Str("client_id", client.ID).Str("action", inbound.Action).Int64("seq", inbound.Seq).Msg("inbound command")
		router.Submit(client.ID, inbound)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	for {
		select {
		case out, ok := <-client.Out:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				logger.Error().Err(err).Str("client_id", client.ID).Msg("write ws message")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
