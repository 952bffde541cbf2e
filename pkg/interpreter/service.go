package interpreter

import (
	"context"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/multical401/pkg/types"
)

const (
	maxRetries     = 10
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 60 * time.Second
)

// Manage websocket connection to the meter API and call funcToCall for each reading.
// Returns when ctx is done or the API stayed unreachable for maxRetries attempts.
func StartListener(
	ctx context.Context,
	host string,
	useTLS bool,
	logger *logrus.Logger,
	funcToCall func(msg *types.MeterReadingMessage),
) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	if useTLS {
		u.Scheme = "wss"
	}
	log := logger.WithField("url", u.String())

	retryCount := 0
	for {
		if ctx.Err() != nil {
			log.Info("Shutting down listener")
			return
		}

		// Calculate retry delay with exponential backoff
		retryDelay := time.Duration(1<<retryCount) * baseRetryDelay
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}

		if retryCount > 0 {
			log.Infof("Retrying connection in %v... (attempt %d/%d)", retryDelay, retryCount+1, maxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				log.Info("Shutting down during retry wait")
				return
			}
		}

		log.Info("Connecting")

		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			log.Warnf("Connection failed: %v", err)
			retryCount++
			if retryCount >= maxRetries {
				log.Errorf("Max retries (%d) reached. Giving up.", maxRetries)
				return
			}
			continue
		}

		log.Info("Connected! Accepting meter readings.")
		retryCount = 0

		connectionBroken := handleConnection(ctx, c, log, funcToCall)
		c.Close()

		if !connectionBroken {
			return
		}
		log.Warn("Connection lost, will retry...")
	}
}

// Meter readings arrive once per scan interval, allow a few to go missing.
const readDeadline = 5 * time.Minute

func handleConnection(
	ctx context.Context,
	c *websocket.Conn,
	log *logrus.Entry,
	funcToCall func(msg *types.MeterReadingMessage),
) bool {
	done := make(chan struct{})

	c.SetReadDeadline(time.Now().Add(readDeadline))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readDeadline))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warnf("WebSocket error: %v", err)
				} else {
					log.Infof("Connection closed: %v", err)
				}
				return
			}

			c.SetReadDeadline(time.Now().Add(readDeadline))

			if messageType != websocket.TextMessage {
				log.Debugf("Received unexpected message type: %d", messageType)
				continue
			}
			if msg := types.MeterReadingMessageFromJsonBytes(message); msg != nil {
				funcToCall(msg)
			} else {
				log.Warnf("Failed to parse meter reading: %s", string(message))
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warnf("Failed to send ping: %v", err)
			}
		case <-ctx.Done():
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Warnf("Error sending close message: %v", err)
			}

			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
