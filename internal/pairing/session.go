package pairing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SafeMPC/card-bridge/internal/chain"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/SafeMPC/card-bridge/internal/infra/key"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/dropbox/godropbox/time2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrProposalNotFound 提议不存在或已处理
	ErrProposalNotFound = errors.New("session proposal not found")
	// ErrNoAccount 尚未读取卡片账户
	ErrNoAccount = errors.New("no card account available, tap the card first")
)

// Session 已批准的会话
type Session struct {
	Topic     string
	Peer      Metadata
	Chains    []string
	Accounts  []string
	Methods   []string
	Events    []string
	CreatedAt time.Time

	sink signing.ResponseSink
}

// Proposal 等待批准的会话提议
type Proposal struct {
	ID         int64
	Proposer   Proposer
	Chains     []string
	ReceivedAt time.Time

	sink signing.ResponseSink
}

// SessionManager 会话与提议的内存表，不做持久化
type SessionManager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	proposals map[int64]*Proposal

	chains      *chain.Registry
	keys        *key.Service
	autoApprove bool
	clock       time2.Clock
}

// NewSessionManager 创建会话管理器
func NewSessionManager(cfg config.Pairing, chains *chain.Registry, keys *key.Service, clock time2.Clock) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		proposals:   make(map[int64]*Proposal),
		chains:      chains,
		keys:        keys,
		autoApprove: cfg.AutoApproveSessions,
		clock:       clock,
	}
}

// validateProposal 只接受 eip155 命名空间，且所有链都已注册
func (m *SessionManager) validateProposal(params *ProposeParams) ([]string, error) {
	ns, ok := params.RequiredNamespaces[chain.NamespaceEIP155]
	if !ok {
		return nil, errors.Errorf("only namespace %s is supported", chain.NamespaceEIP155)
	}
	for name := range params.RequiredNamespaces {
		if name != chain.NamespaceEIP155 {
			return nil, errors.Errorf("namespace %s is not supported", name)
		}
	}
	if len(ns.Chains) == 0 {
		return nil, errors.New("no chains requested")
	}
	for _, id := range ns.Chains {
		if _, ok := m.chains.Get(id); !ok {
			return nil, errors.Errorf("chain %s is not supported", id)
		}
	}
	return ns.Chains, nil
}

// Propose 处理会话提议。自动批准时立即响应，否则保存等待人工批准
func (m *SessionManager) Propose(ctx context.Context, sink signing.ResponseSink, id int64, params *ProposeParams) error {
	chains, err := m.validateProposal(params)
	if err != nil {
		return sink.Reject(ctx, id, CodeUnsupported, err.Error())
	}

	proposal := &Proposal{
		ID:         id,
		Proposer:   params.Proposer,
		Chains:     chains,
		ReceivedAt: m.clock.Now(),
		sink:       sink,
	}

	log.Info().
		Int64("proposal_id", id).
		Str("peer", params.Proposer.Metadata.Name).
		Strs("chains", chains).
		Bool("auto_approve", m.autoApprove).
		Msg("Session proposal received")

	if m.autoApprove {
		_, err := m.approve(ctx, proposal)
		if errors.Is(err, ErrNoAccount) {
			return nil
		}
		return err
	}

	m.mu.Lock()
	m.proposals[id] = proposal
	m.mu.Unlock()
	return nil
}

// ApproveProposal 批准等待中的提议
func (m *SessionManager) ApproveProposal(ctx context.Context, id int64) (*Session, error) {
	proposal, err := m.takeProposal(id)
	if err != nil {
		return nil, err
	}
	return m.approve(ctx, proposal)
}

// RejectProposal 拒绝等待中的提议
func (m *SessionManager) RejectProposal(ctx context.Context, id int64, reason string) error {
	proposal, err := m.takeProposal(id)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "Rejected by user"
	}
	log.Info().Int64("proposal_id", id).Str("reason", reason).Msg("Session proposal rejected")
	return proposal.sink.Reject(ctx, id, CodeUnsupported, reason)
}

func (m *SessionManager) takeProposal(id int64) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proposal, ok := m.proposals[id]
	if !ok {
		return nil, ErrProposalNotFound
	}
	delete(m.proposals, id)
	return proposal, nil
}

func (m *SessionManager) approve(ctx context.Context, proposal *Proposal) (*Session, error) {
	identity, ok := m.keys.Current()
	if !ok {
		if err := proposal.sink.Reject(ctx, proposal.ID, CodeUnsupported, ErrNoAccount.Error()); err != nil {
			return nil, err
		}
		return nil, ErrNoAccount
	}

	accounts := make([]string, 0, len(proposal.Chains))
	for _, id := range proposal.Chains {
		accounts = append(accounts, identity.CAIP10(id))
	}

	session := &Session{
		Topic:     uuid.NewString(),
		Peer:      proposal.Proposer.Metadata,
		Chains:    proposal.Chains,
		Accounts:  accounts,
		Methods:   chain.SupportedMethods(),
		Events:    chain.SupportedEvents(),
		CreatedAt: m.clock.Now(),
		sink:      proposal.sink,
	}

	m.mu.Lock()
	m.sessions[session.Topic] = session
	m.mu.Unlock()

	log.Info().
		Str("topic", session.Topic).
		Str("peer", session.Peer.Name).
		Strs("accounts", accounts).
		Msg("Session approved")

	err := proposal.sink.Approve(ctx, proposal.ID, &ProposeResult{
		Topic: session.Topic,
		Namespaces: map[string]SessionNamespace{
			chain.NamespaceEIP155: {
				Accounts: accounts,
				Methods:  session.Methods,
				Events:   session.Events,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to deliver session approval")
	}
	return session, nil
}

// Lookup 返回 sink 拥有的会话
func (m *SessionManager) Lookup(sink signing.ResponseSink, topic string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[topic]
	if !ok || s.sink != sink {
		return nil, errors.Errorf("unknown session topic %q", topic)
	}
	return s, nil
}

// Delete 删除会话
func (m *SessionManager) Delete(sink signing.ResponseSink, topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[topic]
	if !ok || s.sink != sink {
		return false
	}
	delete(m.sessions, topic)
	return true
}

// Sink 会话所属对端
func (s *Session) Sink() signing.ResponseSink {
	return s.sink
}

// Remove 由本地管理接口删除会话，不检查所属对端
func (m *SessionManager) Remove(topic string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[topic]
	if !ok {
		return nil, false
	}
	delete(m.sessions, topic)
	log.Info().Str("topic", topic).Msg("Session removed locally")
	return s, true
}

// DropPeer 清除对端的全部会话与提议
func (m *SessionManager) DropPeer(sink signing.ResponseSink) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for topic, s := range m.sessions {
		if s.sink == sink {
			delete(m.sessions, topic)
			n++
		}
	}
	for id, p := range m.proposals {
		if p.sink == sink {
			delete(m.proposals, id)
		}
	}
	return n
}

// Sessions 返回全部会话（按创建时间）
func (m *SessionManager) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Proposals 返回等待批准的提议
func (m *SessionManager) Proposals() []Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Proposal, 0, len(m.proposals))
	for _, p := range m.proposals {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasChain 判断会话是否包含链
func (s *Session) HasChain(id string) bool {
	for _, c := range s.Chains {
		if c == id {
			return true
		}
	}
	return false
}

func (s *Session) String() string {
	return fmt.Sprintf("%s (%s)", s.Topic, s.Peer.Name)
}
