package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mohitkumar/strand/expression"
	"github.com/mohitkumar/strand/model"
)

// DomainStrategy extracts the domain id of a message. Messages it has no id
// for are not routed to any thread.
type DomainStrategy interface {
	Name() string
	DomainID(msg model.Message) (string, bool)
}

var _ DomainStrategy = new(attributeStrategy)

type attributeStrategy struct {
	name string
	attr string
}

func NewAttributeStrategy(name string, attr string) DomainStrategy {
	return &attributeStrategy{name: name, attr: attr}
}

func (a *attributeStrategy) Name() string {
	return a.name
}

func (a *attributeStrategy) DomainID(msg model.Message) (string, bool) {
	v, ok := msg.Attr(a.attr)
	if !ok || v == nil {
		return "", false
	}
	id := fmt.Sprintf("%v", v)
	return id, len(id) > 0
}

var _ DomainStrategy = new(expressionStrategy)

type expressionStrategy struct {
	name string
	src  string
	ev   expression.Evaluator
}

func NewExpressionStrategy(name string, src string, ev expression.Evaluator) (DomainStrategy, error) {
	if err := ev.Compile(src); err != nil {
		return nil, err
	}
	return &expressionStrategy{name: name, src: src, ev: ev}, nil
}

func (e *expressionStrategy) Name() string {
	return e.name
}

func (e *expressionStrategy) DomainID(msg model.Message) (string, bool) {
	v, err := e.ev.Eval(e.src, map[string]any{"event": msg.ToMap()})
	if err != nil || v == nil {
		return "", false
	}
	id := fmt.Sprintf("%v", v)
	return id, len(id) > 0
}

// Strategies holds the domain strategies by name.
type Strategies struct {
	sync.RWMutex
	strategies map[string]DomainStrategy
}

func NewStrategies() *Strategies {
	return &Strategies{strategies: make(map[string]DomainStrategy)}
}

func (s *Strategies) Register(st DomainStrategy) {
	s.Lock()
	defer s.Unlock()
	s.strategies[st.Name()] = st
}

func (s *Strategies) Get(name string) (DomainStrategy, bool) {
	s.RLock()
	defer s.RUnlock()
	st, ok := s.strategies[name]
	return st, ok
}

// ParseStrategy reads a "name=attribute" or "name=${expression}" pair.
func ParseStrategy(raw string, ev expression.Evaluator) (DomainStrategy, error) {
	name, value, ok := strings.Cut(raw, "=")
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if !ok || len(name) == 0 || len(value) == 0 {
		return nil, fmt.Errorf("invalid domain strategy %q", raw)
	}
	if expression.IsExpression(value) {
		return NewExpressionStrategy(name, expression.Unwrap(value), ev)
	}
	return NewAttributeStrategy(name, value), nil
}

// domainGroups is a batch split by domain id, ids kept in first seen order.
type domainGroups struct {
	order  []string
	groups map[string][]model.Message
}

func groupByDomain(st DomainStrategy, msgs []model.Message) domainGroups {
	g := domainGroups{groups: make(map[string][]model.Message)}
	for _, msg := range msgs {
		id, ok := st.DomainID(msg)
		if !ok {
			continue
		}
		if _, seen := g.groups[id]; !seen {
			g.order = append(g.order, id)
		}
		g.groups[id] = append(g.groups[id], msg)
	}
	return g
}
