package cluster

import (
	"net"

	"github.com/hashicorp/serf/serf"
	"github.com/mohitkumar/strand/logger"
	"go.uber.org/zap"
)

const rpcAddrTag = "rpc_addr"

type Config struct {
	NodeName       string
	BindAddr       string
	Tags           map[string]string
	StartJoinAddrs []string
}

// Handler receives the members of the cluster as they come and go.
type Handler interface {
	Join(name, addr string) error
	Leave(name string) error
}

// Membership follows the serf cluster and keeps the handler in sync with the
// live members. Members without an rpc address are never reported.
type Membership struct {
	Config
	handler Handler
	serf    *serf.Serf
	events  chan serf.Event
	logger  *zap.Logger
}

func NewMembership(handler Handler, config Config) (*Membership, error) {
	m := &Membership{
		Config:  config,
		handler: handler,
		logger:  logger.Named("membership"),
	}
	if err := m.setupSerf(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Membership) setupSerf() (err error) {
	addr, err := net.ResolveTCPAddr("tcp", m.BindAddr)
	if err != nil {
		return err
	}
	config := serf.DefaultConfig()
	config.Init()
	config.MemberlistConfig.BindAddr = addr.IP.String()
	config.MemberlistConfig.BindPort = addr.Port
	m.events = make(chan serf.Event)
	config.EventCh = m.events
	config.Tags = m.Tags
	config.NodeName = m.NodeName
	m.serf, err = serf.Create(config)
	if err != nil {
		return err
	}
	go m.eventHandler()
	if len(m.StartJoinAddrs) > 0 {
		if _, err = m.serf.Join(m.StartJoinAddrs, true); err != nil {
			return err
		}
	}
	return nil
}

func (m *Membership) eventHandler() {
	for e := range m.events {
		me, ok := e.(serf.MemberEvent)
		if !ok {
			continue
		}
		for _, member := range me.Members {
			if m.isLocal(member) {
				continue
			}
			switch e.EventType() {
			case serf.EventMemberJoin:
				m.handleJoin(member)
			case serf.EventMemberLeave, serf.EventMemberFailed, serf.EventMemberReap:
				m.handleLeave(member)
			}
		}
	}
}

func (m *Membership) handleJoin(member serf.Member) {
	addr, ok := member.Tags[rpcAddrTag]
	if !ok {
		m.logger.Warn("ignoring member without rpc address", zap.String("name", member.Name))
		return
	}
	if err := m.handler.Join(member.Name, addr); err != nil {
		m.logError(err, "failed to join", member)
	}
}

func (m *Membership) handleLeave(member serf.Member) {
	if err := m.handler.Leave(member.Name); err != nil {
		m.logError(err, "failed to leave", member)
	}
}

func (m *Membership) isLocal(member serf.Member) bool {
	return m.serf.LocalMember().Name == member.Name
}

func (m *Membership) LocalMember() string {
	return m.serf.LocalMember().Name
}

// Nodes lists the alive members carrying an rpc address.
func (m *Membership) Nodes() []Node {
	var out []Node
	for _, member := range m.serf.Members() {
		addr, ok := member.Tags[rpcAddrTag]
		if member.Status != serf.StatusAlive || !ok {
			continue
		}
		out = append(out, Node{Name: member.Name, Addr: addr})
	}
	return out
}

func (m *Membership) Leave() error {
	return m.serf.Leave()
}

func (m *Membership) logError(err error, msg string, member serf.Member) {
	m.logger.Error(
		msg,
		zap.Error(err),
		zap.String("name", member.Name),
		zap.String(rpcAddrTag, member.Tags[rpcAddrTag]),
	)
}
