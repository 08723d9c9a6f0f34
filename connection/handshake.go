package connection

import (
	"github.com/deepstream-client/go-deepstream/errs"
	"github.com/deepstream-client/go-deepstream/internal/typedvalue"
	"github.com/deepstream-client/go-deepstream/protocol"
)

// handleFrame decodes an inbound wire frame and routes each message
// either to internal CONNECTION/AUTH handling or to the registered
// per-topic queue (spec.md §4.3 "Dispatch").
func (c *Connection) handleFrame(frame string) {
	msgs, errsList := protocol.Decode(frame)
	for _, perr := range errsList {
		c.log.Warn("malformed frame chunk", "err", perr)
		c.raiseRuntimeErrorSafely(protocol.TopicError, errs.MessageParseError, perr.Error())
	}
	for _, msg := range msgs {
		c.route(msg)
	}
}

func (c *Connection) route(msg protocol.Message) {
	switch msg.Topic {
	case protocol.TopicConnection:
		c.handleConnectionMessage(msg)
	case protocol.TopicAuth:
		c.handleAuthMessage(msg)
	default:
		c.mu.Lock()
		q := c.queues[msg.Topic]
		c.mu.Unlock()
		if q == nil {
			c.log.Warn("no handler registered for topic", "topic", msg.Topic.String())
			return
		}
		q.push(msg)
	}
}

func (c *Connection) handleConnectionMessage(msg protocol.Message) {
	switch msg.Action {
	case protocol.ActionPing:
		c.SendMessage(protocol.TopicConnection, protocol.ActionPong)
	case protocol.ActionChallenge:
		c.setState(Challenging)
		c.mu.Lock()
		url := c.originalURL
		c.mu.Unlock()
		c.SendMessage(protocol.TopicConnection, protocol.ActionChallengeResponse, url)
	case protocol.ActionAck:
		if c.State() == Challenging {
			c.setState(AwaitingAuthentication)
			c.tryResendCachedAuth()
		}
	case protocol.ActionRejection:
		c.raiseRuntimeErrorSafely(protocol.TopicConnection, errs.ConnectionError, "connection rejected")
		c.deliberateAbort()
	case protocol.ActionRedirect:
		target, ok := msg.Field(0)
		if !ok {
			return
		}
		c.mu.Lock()
		c.currentURL = target
		c.redirected = true
		tr := c.tr
		c.mu.Unlock()
		if tr != nil {
			tr.Close()
		}
	case protocol.ActionError:
		text, _ := msg.Field(0)
		c.raiseRuntimeErrorSafely(protocol.TopicConnection, errs.ConnectionError, text)
	}
}

func (c *Connection) deliberateAbort() {
	c.mu.Lock()
	c.deliberateClose = true
	tr := c.tr
	c.mu.Unlock()
	if tr != nil {
		tr.Close()
	}
	c.transition(Closed)
}

func (c *Connection) handleAuthMessage(msg protocol.Message) {
	switch msg.Action {
	case protocol.ActionAck:
		c.mu.Lock()
		cb := c.loginCb
		c.mu.Unlock()
		c.transition(Open)
		if cb != nil {
			cb(LoginResult{LoggedIn: true})
		}
	case protocol.ActionError:
		text, _ := msg.Field(0)
		kind := errs.Kind(text)
		if kind == errs.TooManyAuthAttempts {
			c.mu.Lock()
			c.tooManyAuth = true
			cb := c.loginCb
			c.mu.Unlock()
			if cb != nil {
				cb(LoginResult{LoggedIn: false, ErrorKind: errs.TooManyAuthAttempts})
			}
			c.deliberateAbort()
			return
		}
		c.setState(AwaitingAuthentication)
		c.mu.Lock()
		cb := c.loginCb
		c.mu.Unlock()
		if cb != nil {
			cb(LoginResult{LoggedIn: false, ErrorKind: kind})
		}
	}
}

// Authenticate sends AUTH|REQ with params encoded the way every other
// payload field is (internal/typedvalue), and invokes cb with the
// eventual AUTH|ACK or AUTH|ERROR result. The params are cached so a
// later reconnect automatically re-authenticates with the same
// credentials (spec.md is silent on this; see DESIGN.md).
func (c *Connection) Authenticate(params interface{}, cb func(LoginResult)) {
	c.mu.Lock()
	if c.tooManyAuth {
		c.mu.Unlock()
		cb(LoginResult{LoggedIn: false, ErrorKind: errs.IsClosed})
		return
	}
	c.loginCb = cb
	c.authParams = params
	state := c.state
	c.mu.Unlock()

	if state != AwaitingAuthentication {
		return
	}
	c.sendAuth(params)
}

func (c *Connection) sendAuth(params interface{}) {
	frame, err := typedvalue.Encode(params)
	if err != nil {
		c.log.Error("authenticate encode failed", "err", err)
		return
	}
	c.setState(Authenticating)
	c.mu.Lock()
	c.authSent = true
	c.mu.Unlock()
	c.SendMessage(protocol.TopicAuth, protocol.ActionRequest, frame)
}

// tryResendCachedAuth resends the last-used auth params automatically
// after a reconnect reaches AWAITING_AUTHENTICATION, without invoking the
// original login callback's application-visible side effects again.
func (c *Connection) tryResendCachedAuth() {
	c.mu.Lock()
	params := c.authParams
	hadAuth := c.authSent
	if hadAuth && params != nil {
		c.loginCb = nil
	}
	c.mu.Unlock()
	if !hadAuth || params == nil {
		return
	}
	c.sendAuth(params)
}
