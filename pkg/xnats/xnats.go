// Package xnats ships exchange journal entries to NATS JetStream.
package xnats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"peachcash/pkg/info"
	"peachcash/pkg/journal"
	"peachcash/pkg/xlog"

	"github.com/nats-io/nats.go"
)

const HeaderInstance = "Peach-Instance"

var logger = xlog.GetLogger()

type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

func Connect(url, subject string) (p *Publisher, err error) {
	nc, err := nats.Connect(url, nats.Name("peachcash-"+info.InstanceID))
	if err != nil {
		return
	}

	js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		nc.Close()
		return
	}

	logger.Infof("xnats connected %s, subject %s.*", url, subject)
	return &Publisher{nc: nc, js: js, subject: subject}, nil
}

// EnsureStream creates the stream capturing subject.* when it does not exist yet
func (p *Publisher) EnsureStream(name string) error {
	_, err := p.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{p.subject + ".*"},
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	logger.Infof("xnats stream %s created", name)
	return nil
}

// Publish sends one entry, the message id makes a replay of the same line a no-op on the server
func (p *Publisher) Publish(e journal.Entry) (err error) {
	data, err := json.Marshal(EventFromEntry(e))
	if err != nil {
		return
	}

	msg := nats.NewMsg(Subject(p.subject, e.State))
	msg.Data = data
	msg.Header.Set(HeaderInstance, info.InstanceID)
	msg.Header.Set(nats.MsgIdHdr, fmt.Sprintf("%s-%d", e.TxID, e.LogID))

	_, err = p.js.PublishMsg(msg)
	if err != nil {
		logger.Errorf("xnats publish logID:%d failed with err:%s", e.LogID, err)
	}
	return
}

// Ship publishes every entry from ch with a LogID above after until ctx is done or ch closes.
// It returns the last published LogID.
func (p *Publisher) Ship(ctx context.Context, ch <-chan journal.Entry, after int64) (last int64, err error) {
	last = after
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return last, nil
			}
			if e.LogID <= last {
				continue
			}
			if err = p.Publish(e); err != nil {
				return
			}
			last = e.LogID
		}
	}
}

func (p *Publisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}
