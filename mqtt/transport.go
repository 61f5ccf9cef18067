// Package mqtt carries console lines over an MQTT broker: every message
// published to the input topic is one line, and everything the console
// writes is published to the output topic.
package mqtt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

const (
	// LineSize is the most payload bytes kept per line, the same as the
	// serial receive buffer.
	LineSize = 40

	queueSize = 4
	pollTime  = 5 * time.Millisecond

	defaultKeepAlive = 60 * time.Second
)

// ErrDisconnected is returned by ReadLine and Write once the broker
// connection is lost.
var ErrDisconnected = errors.New("mqtt: disconnected")

// Client is the part of *mqtt.Client the transport drives.
type Client interface {
	StartConnect(rwc io.ReadWriteCloser, vc *mqtt.VariablesConnect) error
	Subscribe(ctx context.Context, vsub mqtt.VariablesSubscribe) error
	HandleNext() error
	StartPing() error
	PublishPayload(flags mqtt.PacketFlags, vp mqtt.VariablesPublish, payload []byte) error
	IsConnected() bool
	Err() error
}

// Deadliner is implemented by connections that support I/O deadlines,
// such as the lneto TCP conn.
type Deadliner interface {
	SetDeadline(t time.Time) error
}

type Config struct {
	ID       string
	Username string // optional
	Password string // optional, requires Username

	// Prefix of the topics: lines arrive on Prefix+"/in", output is
	// published to Prefix+"/out".
	Prefix string

	// Timeout for each network operation. Defaults to 5s.
	Timeout time.Duration

	// KeepAlive sent to the broker, rounded down to whole seconds. The
	// transport pings once it has been idle for half of it. Defaults to 60s.
	KeepAlive time.Duration

	Logger *slog.Logger
}

type line struct {
	buf [LineSize]byte
	len int
	n   int
}

// Transport implements the console transport over MQTT.
type Transport struct {
	client   Client
	logger   *slog.Logger
	conn     Deadliner
	timeout  time.Duration
	id       string
	username string
	password string

	keepAlive time.Duration
	lastTx    time.Time
	now       func() time.Time

	inTopic  []byte
	pubFlags mqtt.PacketFlags
	pubVar   mqtt.VariablesPublish

	// Lines received but not yet read. OnPublish runs inside HandleNext,
	// on the reading goroutine, so no locking is needed.
	queue [queueSize]line
	head  int
	count int
	cur   line
}

// New returns a Transport backed by a natiu-mqtt client.
func New(cfg Config) *Transport {
	t := newTransport(nil, cfg)
	t.client = mqtt.NewClient(mqtt.ClientConfig{
		// Preallocated so decoding does not grow the heap.
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 512)},
		OnPub:   t.OnPublish,
	})
	return t
}

func newTransport(client Client, cfg Config) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(127),
		}))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	keepAlive := cfg.KeepAlive
	if keepAlive < time.Second {
		keepAlive = defaultKeepAlive
	}
	pubFlags, _ := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	return &Transport{
		client:    client,
		logger:    logger,
		timeout:   timeout,
		id:        cfg.ID,
		username:  cfg.Username,
		password:  cfg.Password,
		keepAlive: keepAlive,
		now:       time.Now,
		inTopic:   []byte(cfg.Prefix + "/in"),
		pubFlags:  pubFlags,
		pubVar: mqtt.VariablesPublish{
			TopicName: []byte(cfg.Prefix + "/out"),
		},
	}
}

// Connect starts an MQTT session over conn, waits for the broker to accept
// it and subscribes to the input topic.
func (t *Transport) Connect(ctx context.Context, conn io.ReadWriteCloser) error {
	if d, ok := conn.(Deadliner); ok {
		t.conn = d
	}
	var varconn mqtt.VariablesConnect
	varconn.KeepAlive = uint16(min(t.keepAlive/time.Second, 0xffff))
	varconn.SetDefaultMQTT([]byte(t.id))
	if t.username != "" {
		varconn.Username = []byte(t.username)
		if t.password != "" {
			varconn.Password = []byte(t.password)
		}
	}

	t.logger.Info("mqtt:start-connecting", slog.String("id", t.id))
	t.extendDeadline()
	if err := t.client.StartConnect(conn, &varconn); err != nil {
		return errors.New("mqtt: start connect: " + err.Error())
	}
	t.lastTx = t.now()
	retries := 50
	for retries > 0 && !t.client.IsConnected() {
		if err := ctx.Err(); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
		if err := t.client.HandleNext(); err != nil {
			t.logger.Error("mqtt:handle-next-failed", slog.String("err", err.Error()))
		}
		retries--
	}
	if !t.client.IsConnected() {
		return errors.New("mqtt: connect timed out: " + errString(t.client.Err()))
	}
	t.logger.Info("mqtt:connected")

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	t.extendDeadline()
	err := t.client.Subscribe(ctx, mqtt.VariablesSubscribe{
		TopicFilters: []mqtt.SubscribeRequest{
			{TopicFilter: t.inTopic, QoS: mqtt.QoS0},
		},
		PacketIdentifier: t.nextPacketID(),
	})
	if err != nil {
		return errors.New("mqtt: subscribe " + string(t.inTopic) + ": " + err.Error())
	}
	t.lastTx = t.now()
	t.logger.Info("mqtt:subscribed", slog.String("topic", string(t.inTopic)))
	return nil
}

// OnPublish queues the payload of a message on the input topic as one
// line. Bytes past LineSize are counted and discarded; a trailing CR or LF
// is dropped.
func (t *Transport) OnPublish(_ mqtt.Header, vp mqtt.VariablesPublish, r io.Reader) error {
	if string(vp.TopicName) != string(t.inTopic) {
		t.logger.Debug("mqtt:ignored", slog.String("topic", string(vp.TopicName)))
		return nil
	}
	if t.count == queueSize {
		t.logger.Warn("mqtt:queue-full", slog.Int("dropped", t.queue[t.head].n))
		t.head = (t.head + 1) % queueSize
		t.count--
	}
	l := &t.queue[(t.head+t.count)%queueSize]
	kept, err := io.ReadFull(r, l.buf[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	rest, err := io.Copy(io.Discard, r)
	if err != nil {
		return err
	}
	for kept > 0 && rest == 0 && (l.buf[kept-1] == '\n' || l.buf[kept-1] == '\r') {
		kept--
	}
	l.len = kept
	l.n = kept + int(rest)
	t.count++
	return nil
}

// ReadLine blocks until a line arrives on the input topic, pinging the
// broker while idle so the session outlives its keepalive. The returned
// slice is valid until the next call.
func (t *Transport) ReadLine() ([]byte, int, error) {
	for t.count == 0 {
		if !t.client.IsConnected() {
			return nil, 0, t.disconnected()
		}
		t.extendDeadline()
		t.pingIfIdle()
		if err := t.client.HandleNext(); err != nil {
			t.logger.Debug("mqtt:handle-next-failed", slog.String("err", err.Error()))
		}
		if t.count == 0 {
			// TinyGo runs on a single core; give other goroutines a turn.
			runtime.Gosched()
			time.Sleep(pollTime)
		}
	}
	t.cur = t.queue[t.head]
	t.head = (t.head + 1) % queueSize
	t.count--
	return t.cur.buf[:t.cur.len], t.cur.n, nil
}

// Write publishes p to the output topic as one message.
func (t *Transport) Write(p []byte) (int, error) {
	if !t.client.IsConnected() {
		return 0, t.disconnected()
	}
	t.pubVar.PacketIdentifier = t.nextPacketID()
	t.extendDeadline()
	if err := t.client.PublishPayload(t.pubFlags, t.pubVar, p); err != nil {
		return 0, errors.New("mqtt: publish: " + err.Error())
	}
	t.lastTx = t.now()
	return len(p), nil
}

func (t *Transport) pingIfIdle() {
	if t.now().Sub(t.lastTx) < t.keepAlive/2 {
		return
	}
	if err := t.client.StartPing(); err != nil {
		t.logger.Error("mqtt:ping-failed", slog.String("err", err.Error()))
		return
	}
	t.lastTx = t.now()
	t.logger.Debug("mqtt:ping")
}

func (t *Transport) disconnected() error {
	t.logger.Error("mqtt:disconnected", slog.Any("reason", t.client.Err()))
	return ErrDisconnected
}

func (t *Transport) extendDeadline() {
	if t.conn != nil {
		t.conn.SetDeadline(time.Now().Add(t.timeout))
	}
}

func (t *Transport) nextPacketID() uint16 {
	t.pubVar.PacketIdentifier++
	if t.pubVar.PacketIdentifier == 0 {
		t.pubVar.PacketIdentifier = 1
	}
	return t.pubVar.PacketIdentifier
}

func errString(err error) string {
	if err == nil {
		return "no error reported"
	}
	return err.Error()
}

// TopicIn returns the topic lines are read from.
func (t *Transport) TopicIn() string { return string(t.inTopic) }

// TopicOut returns the topic output is published to.
func (t *Transport) TopicOut() string { return string(t.pubVar.TopicName) }
